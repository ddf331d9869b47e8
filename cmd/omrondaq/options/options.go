package options

import (
	"context"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"omrongateway/cmd/omrondaq/config"
	"omrongateway/pkg/device"
	"omrongateway/pkg/gateway"
	"omrongateway/pkg/generic"
	baseoptions "omrongateway/pkg/generic/options"
	"omrongateway/pkg/runtime"
	"omrongateway/pkg/storage"
)

type Options struct {
	Port         string        `json:"port"`
	Wait         time.Duration `json:"graceful-timeout"`
	MqttBroker   string        `json:"mqtt-broker"`
	MqttClientId string        `json:"mqtt-client-id"`
	RecordPath   string        `json:"record-path"`
	baseoptions.BaseOptions
}

const (
	_defaultPort = "32200"
	_defaultWait = 15 * time.Second
)

func NewDefaultOptions() *Options {
	return &Options{
		Port:        _defaultPort,
		Wait:        _defaultWait,
		RecordPath:  os.TempDir(),
		BaseOptions: baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	// refer to node port assignment https://rancher.com/docs/rancher/v2.x/en/installation/requirements/ports/#commonly-used-ports
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port exposed")
	fs.DurationVar(&o.Wait, "graceful-timeout", o.Wait, "The duration for which the server gracefully wait for existing connections to finish - e.g. 15s or 1m")
	fs.StringVar(&o.MqttBroker, "mqtt-broker", o.MqttBroker, "MQTT broker url for publishing acquisition data - e.g. tcp://127.0.0.1:1883. Publishing is disabled when empty")
	fs.StringVar(&o.MqttClientId, "mqtt-client-id", o.MqttClientId, "MQTT client id, defaults to the gateway id")
	fs.StringVar(&o.RecordPath, "record-path", o.RecordPath, "Directory acquisition csv files are written to")
}

func (o *Options) Config(stopCh <-chan struct{}) (*config.Config, error) {
	c := &config.Config{}

	gatewayMgr := gateway.NewGatewayManager(stopCh)
	gatewayMgr.Init()
	c.GatewayMgr = gatewayMgr

	gatewayMeta, _ := gatewayMgr.GetGatewayMeta()

	deviceOpts := []device.Option{device.WithRecordPath(o.RecordPath)}

	var mqttClient mqtt.Client
	if len(o.MqttBroker) > 0 {
		clientId := o.MqttClientId
		if len(clientId) == 0 {
			clientId = gatewayMeta.ID
		}
		mqttOptions := mqtt.NewClientOptions().
			AddBroker(o.MqttBroker).
			SetClientID(clientId).
			SetAutoReconnect(true)
		mqttClient = mqtt.NewClient(mqttOptions)
		token := mqttClient.Connect()
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			klog.V(1).InfoS("Failed to connect MQTT broker", "broker", o.MqttBroker, "err", token.Error())
		}
		disconnect := mqttClient
		deviceOpts = append(deviceOpts, device.WithLabeledCloser(runtime.LabeledCloser{
			Label: "mqttClient",
			Closer: func(ctx context.Context) error {
				disconnect.Disconnect(2000)
				return nil
			},
		}))
	}

	store, _ := generic.NewStore(storage.StoreGroupToString[storage.StoreGroupController], storage.Controllers)
	deviceMgr := device.NewManager(store, mqttClient, gatewayMeta, stopCh, deviceOpts...)
	deviceMgr.Init()
	c.DeviceMgr = deviceMgr

	return c, nil
}
