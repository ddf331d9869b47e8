package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mitchellh/mapstructure"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"k8s.io/klog/v2"

	"omrongateway/pkg/apis"
	"omrongateway/pkg/apis/response"
	"omrongateway/pkg/daq"
	"omrongateway/pkg/gateway"
	"omrongateway/pkg/generic"
	"omrongateway/pkg/registry"
	"omrongateway/pkg/runtime"
	"omrongateway/pkg/storage"
	"omrongateway/pkg/transport"
	"omrongateway/pkg/utils/randutil"
	"omrongateway/pkg/utils/uuidutil"
	v1 "omrongateway/pkg/v1"
	"omrongateway/pkg/variables"
)

type Option func(*Manager)

func WithRecordPath(path string) Option {
	return func(m *Manager) { m.recordPath = path }
}

// WithLabeledCloser registers a dependency to close during Shutdown, after
// the registry and schedulers are down. Closers run in reverse order.
func WithLabeledCloser(lc runtime.LabeledCloser) Option {
	return func(m *Manager) { m.closers = append(m.closers, lc) }
}

// Manager owns controller lifecycle: persistence, the live registry of
// protocol clients, acquisition runs and publishing.
type Manager struct {
	gatewayMeta      *gateway.GatewayMeta
	mqttClient       mqtt.Client
	mu               *sync.Mutex
	registry         *registry.Registry
	controllers      *sync.Map
	heartBeatDevices *sync.Map
	schedulers       map[string]*daq.Scheduler
	store            *generic.Store
	recordPath       string
	stopCh           <-chan struct{}
	closers          []runtime.LabeledCloser
}

func NewManager(store *generic.Store, mqttClient mqtt.Client, gatewayMeta *gateway.GatewayMeta, stop <-chan struct{}, opts ...Option) *Manager {
	m := &Manager{
		gatewayMeta:      gatewayMeta,
		mqttClient:       mqttClient,
		mu:               &sync.Mutex{},
		registry:         registry.New(),
		controllers:      &sync.Map{},
		heartBeatDevices: &sync.Map{},
		schedulers:       make(map[string]*daq.Scheduler),
		store:            store,
		recordPath:       os.TempDir(),
		stopCh:           stop,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Init() {
	controllers, _ := m.store.LoadResource()
	for _, obj := range controllers {
		m.controllers.Store(obj.GetID(), obj)

		if err := m.connect(obj); err != nil {
			// retried every heartbeat interval until the port answers
			m.heartBeatDevices.Store(obj.GetID(), obj)
			klog.V(2).InfoS("Failed to connect controller", "controllerId", obj.GetID(), "err", err)
		}
	}

	go m.heartBeatDetection()
}

func (m *Manager) CreateController(object *v1.PowerController) (runtime.Controller, error) {
	if errs := m.validate(object); len(errs) > 0 {
		return nil, apis.ErrInvalidValue
	}
	controller := &runtime.PowerController{
		ObjectMeta: runtime.ObjectMeta{
			Name:    object.Name,
			ID:      uuidutil.UUID(),
			Version: strconv.FormatInt(randutil.Int63n()%runtime.ETagMaxInitialValue, 10),
			ModTime: time.Now(),
		},
		Address: object.Address.Location,
		UnitNo:  object.UnitNo,
		Topic:   object.Topic,
		Serial:  serialOptions(object.Address.Option),
	}

	if err := m.connect(controller); err != nil {
		klog.V(2).InfoS("Failed to connect controller", "address", controller.Address, "err", err)
		return nil, err
	}

	created, err := m.store.Create(controller)
	if err != nil {
		klog.V(2).InfoS("Failed to store controller", "err", err)
		_ = m.registry.RemoveDevice(controller.GetID())
		return nil, err
	}
	rc := created.(runtime.Controller)
	m.controllers.Store(rc.GetID(), rc)

	return rc, nil
}

func (m *Manager) DeleteController(id string, version string) (runtime.Controller, error) {
	controller, err := m.GetControllerById(id, true)
	if err != nil {
		return nil, err
	}

	if controller.GetVersion() != version {
		return nil, apis.ErrMismatch
	}

	if _, err := m.store.Delete(controller); err != nil {
		klog.V(2).InfoS("Failed to delete controller", "controllerId", id, "err", err)
		return nil, err
	}

	m.mu.Lock()
	if s, ok := m.schedulers[id]; ok {
		_ = s.Stop()
		delete(m.schedulers, id)
	}
	m.mu.Unlock()

	m.heartBeatDevices.Delete(id)
	if err := m.registry.RemoveDevice(id); err != nil {
		klog.V(3).InfoS("Controller was not connected", "controllerId", id)
	}
	m.controllers.Delete(id)
	klog.V(2).InfoS("Deleted controller", "controllerId", id)

	return controller, nil
}

func (m *Manager) UpdateControllerById(id string, version string, newObj *v1.PowerController) (runtime.Controller, error) {
	old, err := m.GetControllerById(id, true)
	if err != nil {
		return nil, err
	}

	if version != old.GetVersion() {
		return nil, apis.ErrMismatch
	}
	if errs := m.validate(newObj); len(errs) > 0 {
		return nil, apis.ErrInvalidValue
	}

	updated := &runtime.PowerController{
		ObjectMeta: runtime.ObjectMeta{
			Name:    newObj.Name,
			ID:      old.GetID(),
			Version: old.GetVersion(),
			ModTime: time.Now(),
		},
		Address: newObj.Address.Location,
		UnitNo:  newObj.UnitNo,
		Model:   old.GetModel(),
		Topic:   newObj.Topic,
		Serial:  serialOptions(newObj.Address.Option),
	}

	saved, err := m.store.Update(updated)
	if err != nil {
		klog.V(2).InfoS("Failed to update controller", "err", err)
		return nil, err
	}

	// Reconnect when the wire parameters changed.
	if updated.Address != old.GetAddress() || updated.UnitNo != old.GetUnitNo() {
		_ = m.registry.RemoveDevice(id)
		if err := m.connect(saved); err != nil {
			m.heartBeatDevices.Store(id, saved)
		}
	}
	m.controllers.Store(saved.GetID(), saved)

	return saved, nil
}

func (m *Manager) ListControllers(filter *runtime.ControllerFilter, exploded bool) ([]runtime.Controller, error) {
	rcs := make([]runtime.Controller, 0)
	predicates := runtime.ParseControllerFilter(filter)

	// descend
	byModTime := func(c1, c2 runtime.Controller) bool { return c1.GetModTime().Before(c2.GetModTime()) }
	sorter := runtime.ByController(byModTime)

	m.controllers.Range(func(key, value interface{}) bool {
		isMatch := true
		v := value.(runtime.Controller)
		for _, p := range predicates {
			if !p(v) {
				isMatch = false
				break
			}
		}
		if isMatch {
			rcs = sorter.Insert(rcs, v)
		}
		return true
	})

	if !exploded {
		for i := range rcs {
			rcs[i] = m.foldController(rcs[i])
		}
	}

	return rcs, nil
}

func (m *Manager) GetControllerById(id string, exploded bool) (runtime.Controller, error) {
	c, isExist := m.controllers.Load(id)
	if !isExist {
		return nil, os.ErrNotExist
	}
	controller, _ := c.(runtime.Controller)
	if !exploded {
		return m.foldController(controller), nil
	}
	return controller, nil
}

// GetVariables reads the named variables from one controller; empty names
// reads the standard monitor set.
func (m *Manager) GetVariables(id string, names []string) (registry.Reading, error) {
	if _, err := m.GetControllerById(id, true); err != nil {
		return nil, response.ErrControllerNotFound(id)
	}

	snapshot, err := m.registry.Get(names, id)
	if err != nil {
		klog.V(2).InfoS("Failed to read variables", "controllerId", id, "err", err)
		return nil, err
	}
	return snapshot[id], nil
}

// Monitors reads the standard monitor set from one controller.
func (m *Manager) Monitors(id string) (registry.Reading, error) {
	if _, err := m.GetControllerById(id, true); err != nil {
		return nil, response.ErrControllerNotFound(id)
	}

	snapshot, err := m.registry.Monitors(id)
	if err != nil {
		klog.V(2).InfoS("Failed to read monitors", "controllerId", id, "err", err)
		return nil, err
	}
	return snapshot[id], nil
}

// DeliverAction writes each named value to one controller.
func (m *Manager) DeliverAction(id string, actions []v1.Action) error {
	if _, err := m.GetControllerById(id, true); err != nil {
		return response.NewMultiError(response.ErrControllerNotFound(id))
	}

	table := variables.Default()
	errs := &response.MultiError{}
	commands := make(map[string]interface{}, len(actions))
	for _, action := range actions {
		if _, exist := commands[action.Name]; exist {
			errs.Add(response.ErrResourceExists(action.Name))
			continue
		}
		addr, ok := table.Resolve(action.Name)
		if !ok {
			errs.Add(response.ErrResourceNotFound(action.Name))
			continue
		}
		// Monitor families answer reads only.
		if strings.HasSuffix(addr.Family, "E") {
			errs.Add(response.ErrOperatorUnSupported(action.Name))
			continue
		}
		commands[action.Name] = action.Value
	}
	if errs.Len() > 0 {
		return errs
	}
	if len(commands) == 0 {
		return response.NewMultiError(response.ErrLegalActionNotFound)
	}

	return m.registry.Set(map[string]map[string]interface{}{id: commands})
}

// StartAcquisition opens a recorder and launches one polling run for the
// controller. Readings also go to MQTT when a topic is configured.
func (m *Manager) StartAcquisition(id string, spec *v1.Acquisition) error {
	controller, err := m.GetControllerById(id, true)
	if err != nil {
		return response.ErrControllerNotFound(id)
	}
	duration, err := time.ParseDuration(spec.Duration)
	if err != nil {
		return apis.ErrInvalidValue
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.schedulers[id]; running {
		return response.ErrAcquisitionRunning(id)
	}

	recorder, err := storage.NewCsvRecorder(m.recordFile(controller))
	if err != nil {
		return err
	}

	topic := controller.GetTopic()
	if len(topic) == 0 && m.gatewayMeta != nil {
		topic = fmt.Sprintf("data/%s/v1/%s", m.gatewayMeta.ID, controller.GetID())
		controller.SetTopic(topic)
	}

	opts := []daq.Option{daq.WithNames(spec.Variables)}
	if m.mqttClient != nil {
		opts = append(opts, daq.WithPublisher(&mqttPublisher{
			client: m.mqttClient,
			topic:  topic,
		}))
	}

	scheduler, err := daq.NewScheduler(&scopedSource{registry: m.registry, id: id}, recorder, spec.Rate, duration, opts...)
	if err != nil {
		_ = recorder.Close()
		return err
	}
	m.schedulers[id] = scheduler
	controller.SetAcquisitionStatus(runtime.AcquisitionStatusToString[runtime.Acquiring])
	scheduler.Start()

	go func() {
		<-scheduler.Done()
		_ = recorder.Close()
		m.mu.Lock()
		delete(m.schedulers, id)
		m.mu.Unlock()
		controller.SetAcquisitionStatus(runtime.AcquisitionStatusToString[runtime.Stopped])
		klog.V(2).InfoS("Acquisition finished", "controllerId", id)
	}()

	klog.V(2).InfoS("Acquisition started", "controllerId", id, "rate", spec.Rate, "duration", duration)
	return nil
}

func (m *Manager) StopAcquisition(id string) error {
	m.mu.Lock()
	scheduler, running := m.schedulers[id]
	m.mu.Unlock()
	if !running {
		return response.ErrControllerNotFound(id)
	}
	return scheduler.Stop()
}

type schedulerCommand struct {
	Name string
	Args map[string]interface{}
}

// ExecuteCommand injects a named command into a running acquisition. The
// command bypasses the tick deadline and yields exactly one result.
func (m *Manager) ExecuteCommand(id string, body map[string]interface{}) (interface{}, error) {
	m.mu.Lock()
	scheduler, running := m.schedulers[id]
	m.mu.Unlock()
	if !running {
		return nil, response.ErrControllerNotFound(id)
	}

	var cmd schedulerCommand
	if err := mapstructure.Decode(body, &cmd); err != nil {
		klog.V(3).InfoS("Failed to decode command", "controllerId", id, "err", err)
		return nil, response.ErrRequestBody
	}

	var fn func() (interface{}, error)
	switch cmd.Name {
	case "snapshot":
		fn = func() (interface{}, error) { return m.registry.Get(nil, id) }
	case "ticks":
		fn = func() (interface{}, error) { return scheduler.Ticks(), nil }
	case "skipped":
		fn = func() (interface{}, error) { return scheduler.Skipped(), nil }
	default:
		return nil, response.ErrOperatorUnSupported(cmd.Name)
	}

	if err := scheduler.Execute(fn); err != nil {
		return nil, err
	}
	select {
	case r := <-scheduler.Results():
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Value, nil
	case <-time.After(mqttTimeout * 5):
		return nil, apis.ErrInternal
	}
}

// LatestSnapshot returns the most recent acquisition reading for one
// controller, nil when no run is active.
func (m *Manager) LatestSnapshot(id string) registry.Snapshot {
	m.mu.Lock()
	scheduler, running := m.schedulers[id]
	m.mu.Unlock()
	if !running {
		return nil
	}
	return scheduler.Latest()
}

// SwitchControllerStatus opens or closes the serial link to one
// controller without touching its stored document.
func (m *Manager) SwitchControllerStatus(id string, status string) error {
	controller, err := m.GetControllerById(id, true)
	if err != nil {
		klog.V(2).InfoS("Failed to find controller", "controllerId", id)
		return err
	}
	command, ok := runtime.StringToStatusCommand[status]
	if !ok {
		klog.V(2).InfoS("Unsupported controller status", "status", status)
		return response.ErrOperatorUnSupported(status)
	}

	disconnect := func() {
		m.mu.Lock()
		if s, running := m.schedulers[id]; running {
			_ = s.Stop()
		}
		m.mu.Unlock()
		m.heartBeatDevices.Delete(id)
		if err := m.registry.RemoveDevice(id); err != nil {
			klog.V(3).InfoS("Controller was not connected", "controllerId", id)
		}
		controller.SetAcquisitionStatus(runtime.AcquisitionStatusToString[runtime.Unconnected])
	}

	switch command {
	case runtime.Stop:
		disconnect()
		return nil
	case runtime.Restart:
		disconnect()
		fallthrough
	case runtime.Start:
		if err := m.connect(controller); err != nil {
			m.heartBeatDevices.Store(id, controller)
			return response.ErrControllerNotConnect(id)
		}
		return nil
	}
	return nil
}

// Scan probes candidate serial ports for G3PW controllers.
func (m *Manager) Scan(addresses []string) map[string]string {
	return registry.Scan(addresses, transport.DefaultSerialOptions())
}

func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for id, s := range m.schedulers {
		if err := s.Stop(); err != nil {
			klog.V(2).InfoS("Failed to stop acquisition", "controllerId", id)
		}
	}
	m.mu.Unlock()

	if err := m.registry.RemoveDevice(m.registry.Names()...); err != nil {
		klog.V(2).InfoS("Failed to close controllers", "err", err)
	}

	var errs []string
	for i := len(m.closers); i > 0; i-- {
		lc := m.closers[i-1]
		if err := lc.Closer(ctx); err != nil {
			klog.V(2).InfoS("Failed to stopped Dependencies service", "service", lc.Label)
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to shutdown server: [%s]", strings.Join(errs, ","))
	}
	return nil
}

func (m *Manager) connect(obj runtime.Controller) error {
	pc, _ := obj.(*runtime.PowerController)
	var serial *transport.SerialOptions
	if pc != nil {
		serial = pc.Serial
	}
	if serial == nil {
		serial = transport.DefaultSerialOptions()
	}

	client, err := m.registry.AddDevice(obj.GetID(), obj.GetAddress(), serial)
	if err != nil {
		obj.SetAcquisitionStatus(runtime.AcquisitionStatusToString[runtime.Unconnected])
		return err
	}
	obj.SetModel(client.Model())
	obj.SetAcquisitionStatus(runtime.AcquisitionStatusToString[runtime.Stopped])
	klog.V(2).InfoS("Connected controller", "controllerId", obj.GetID(), "model", client.Model())
	return nil
}

func (m *Manager) validate(object *v1.PowerController) field.ErrorList {
	nameFn := func(name string) error {
		if strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("must not contain path separators")
		}
		return nil
	}
	allErrs := runtime.ValidateObjectMeta(object.Name, nameFn)
	allErrs = append(allErrs, runtime.ValidateUnitNo(object.UnitNo)...)
	if len(allErrs) > 0 {
		klog.V(2).InfoS("Invalid controller", "errs", allErrs.ToAggregate())
	}
	return allErrs
}

func (m *Manager) foldController(controller runtime.Controller) runtime.Controller {
	return &runtime.ControllerMeta{
		ObjectMeta: runtime.ObjectMeta{
			Name:    controller.GetName(),
			ID:      controller.GetID(),
			Version: controller.GetVersion(),
			ModTime: controller.GetModTime(),
		},
		Address:           controller.GetAddress(),
		UnitNo:            controller.GetUnitNo(),
		Model:             controller.GetModel(),
		AcquisitionStatus: controller.GetAcquisitionStatus(),
	}
}

func (m *Manager) recordFile(controller runtime.Controller) string {
	name := fmt.Sprintf("%s-%d.csv", controller.GetID(), time.Now().Unix())
	return filepath.Join(m.recordPath, name)
}

func (m *Manager) heartBeatDetection() {
	tick := time.Tick(heartBeatTimeInterval)
	for {
		select {
		case _, ok := <-m.stopCh:
			if !ok {
				return
			}
		case <-tick:
			resumed := make([]string, 0)
			m.heartBeatDevices.Range(func(key, value any) bool {
				c := value.(runtime.Controller)
				if err := m.connect(c); err == nil {
					resumed = append(resumed, key.(string))
				}
				return true
			})
			for _, id := range resumed {
				m.heartBeatDevices.Delete(id)
			}
		}
	}
}

func serialOptions(option *v1.SerialAddressOption) *transport.SerialOptions {
	opts := transport.DefaultSerialOptions()
	if option == nil {
		return opts
	}
	if option.BaudRate > 0 {
		opts.BaudRate = option.BaudRate
	}
	if option.DataBits > 0 {
		opts.DataBits = option.DataBits
	}
	if p, ok := transport.ParseParity(option.Parity); ok {
		opts.Parity = p
	}
	if sb, ok := transport.ParseStopBits(option.StopBits); ok {
		opts.StopBits = sb
	}
	return opts
}

// scopedSource narrows the registry fan-out to one controller for a
// dedicated acquisition run.
type scopedSource struct {
	registry *registry.Registry
	id       string
}

func (s *scopedSource) Get(names []string, ids ...string) (registry.Snapshot, error) {
	if len(ids) == 0 {
		ids = []string{s.id}
	}
	return s.registry.Get(names, ids...)
}

// mqttPublisher forwards persisted batches to the configured topic.
type mqttPublisher struct {
	client mqtt.Client
	topic  string
}

func (p *mqttPublisher) Publish(rows []storage.Row) {
	for _, row := range rows {
		pds := make([]runtime.PointData, 0, len(row.Values))
		for name, value := range row.Values {
			pds = append(pds, runtime.PointData{DataPointId: name, Value: value})
		}
		publishData := runtime.PublishData{Payload: runtime.Payload{Data: []runtime.TimeSeriesData{{
			Timestamp: runtime.Time(row.Time.UTC()),
			Values:    pds,
		}}}}

		marshal, _ := json.Marshal(publishData)
		token := p.client.Publish(p.topic, 1, false, marshal)
		if token.WaitTimeout(mqttTimeout) && token.Error() == nil {
			klog.V(5).InfoS("Succeed to publish MQTT", "topic", p.topic)
		} else {
			klog.V(1).InfoS("Failed to publish MQTT", "topic", p.topic, "err", token.Error())
		}
	}
}
