package device

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"k8s.io/apimachinery/pkg/types"

	"omrongateway/pkg/apis"
	"omrongateway/pkg/runtime"
	v1 "omrongateway/pkg/v1"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	return NewManager(nil, nil, nil, stop)
}

func storedController(id, name, model string, modTime time.Time) *runtime.PowerController {
	return &runtime.PowerController{
		ObjectMeta: runtime.ObjectMeta{
			Name:    name,
			ID:      id,
			Version: "1",
			ModTime: modTime,
		},
		Address: "/dev/ttyUSB0",
		UnitNo:  1,
		Model:   model,
	}
}

func TestListControllersSortedAndFolded(t *testing.T) {
	m := newTestManager(t)
	base := time.Now()
	m.controllers.Store("a", storedController("a", "oven-1", "G3PW-A245EC-C-FLK", base))
	m.controllers.Store("b", storedController("b", "oven-2", "G3PW-A260EC-C-FLK", base.Add(time.Minute)))

	rcs, err := m.ListControllers(&runtime.ControllerFilter{}, false)
	require.NoError(t, err)
	require.Len(t, rcs, 2)

	// newest first
	assert.Equal(t, "b", rcs[0].GetID())
	assert.Equal(t, "a", rcs[1].GetID())
	for _, rc := range rcs {
		_, folded := rc.(*runtime.ControllerMeta)
		assert.True(t, folded)
	}

	exploded, err := m.ListControllers(&runtime.ControllerFilter{}, true)
	require.NoError(t, err)
	_, full := exploded[0].(*runtime.PowerController)
	assert.True(t, full)
}

func TestListControllersFiltered(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	m.controllers.Store("a", storedController("a", "oven-1", "G3PW-A245EC-C-FLK", now))
	m.controllers.Store("b", storedController("b", "press-1", "G3PW-A260EC-C-FLK", now))

	rcs, err := m.ListControllers(&runtime.ControllerFilter{
		Name: map[string]interface{}{"startsWith": "oven"},
	}, true)
	require.NoError(t, err)
	require.Len(t, rcs, 1)
	assert.Equal(t, "a", rcs[0].GetID())

	rcs, err = m.ListControllers(&runtime.ControllerFilter{Model: "G3PW-A260"}, true)
	require.NoError(t, err)
	require.Len(t, rcs, 1)
	assert.Equal(t, "b", rcs[0].GetID())
}

func TestGetControllerByIdNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetControllerById("missing", true)
	assert.True(t, os.IsNotExist(err))
}

func TestCreateControllerRejectsInvalidUnitNo(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateController(&v1.PowerController{
		Name:    "oven-1",
		Address: &v1.SerialAddress{Location: "/dev/ttyUSB0"},
		UnitNo:  100,
	})
	assert.ErrorIs(t, err, apis.ErrInvalidValue)
}

func TestCreateControllerRejectsSeparatorInName(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateController(&v1.PowerController{
		Name:    "oven/1",
		Address: &v1.SerialAddress{Location: "/dev/ttyUSB0"},
		UnitNo:  1,
	})
	assert.ErrorIs(t, err, apis.ErrInvalidValue)
}

func TestDeliverActionValidation(t *testing.T) {
	m := newTestManager(t)
	m.controllers.Store("a", storedController("a", "oven-1", "G3PW-A245EC-C-FLK", time.Now()))

	err := m.DeliverAction("a", []v1.Action{{Name: "No Such Variable", Value: 1.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No Such Variable")

	// monitor fields answer reads only
	err = m.DeliverAction("a", []v1.Action{{Name: "Input Monitor", Value: 1.0}})
	require.Error(t, err)

	err = m.DeliverAction("a", nil)
	require.Error(t, err)
}

func TestDeliverActionUnconnectedController(t *testing.T) {
	m := newTestManager(t)
	m.controllers.Store("a", storedController("a", "oven-1", "G3PW-A245EC-C-FLK", time.Now()))

	err := m.DeliverAction("a", []v1.Action{{Name: "Output Upper Limit", Value: 80.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestSerialOptionsFromRequest(t *testing.T) {
	opts := serialOptions(nil)
	assert.Equal(t, 57600, opts.BaudRate)
	assert.Equal(t, serial.EvenParity, opts.Parity)

	opts = serialOptions(&v1.SerialAddressOption{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   "odd",
		StopBits: "1",
	})
	assert.Equal(t, 9600, opts.BaudRate)
	assert.Equal(t, 8, opts.DataBits)
	assert.Equal(t, serial.OddParity, opts.Parity)
	assert.Equal(t, serial.OneStopBit, opts.StopBits)
}

func TestApplyJSPatchMerge(t *testing.T) {
	original := []byte(`{"name":"oven-1","unitNo":1}`)
	patched, err := applyJSPatch(types.MergePatchType, []byte(`{"unitNo":2}`), original)
	require.NoError(t, err)
	assert.Contains(t, string(patched), `"unitNo":2`)
}

func TestApplyJSPatchJSONPatch(t *testing.T) {
	original := []byte(`{"name":"oven-1","unitNo":1}`)
	patch := []byte(`[{"op":"replace","path":"/name","value":"oven-2"}]`)
	patched, err := applyJSPatch(types.JSONPatchType, patch, original)
	require.NoError(t, err)
	assert.Contains(t, string(patched), "oven-2")
}

func TestApplyJSPatchTooManyOperations(t *testing.T) {
	ops := make([]string, 0, maxJSONPatchOperations+1)
	for i := 0; i <= maxJSONPatchOperations; i++ {
		ops = append(ops, `{"op":"replace","path":"/name","value":"x"}`)
	}
	patch := []byte("[" + strings.Join(ops, ",") + "]")
	_, err := applyJSPatch(types.JSONPatchType, patch, []byte(`{"name":"oven-1"}`))
	require.Error(t, err)
}

func TestStopAcquisitionWithoutRun(t *testing.T) {
	m := newTestManager(t)
	m.controllers.Store("a", storedController("a", "oven-1", "G3PW-A245EC-C-FLK", time.Now()))
	assert.Error(t, m.StopAcquisition("a"))
	assert.Nil(t, m.LatestSnapshot("a"))

	_, err := m.ExecuteCommand("a", map[string]interface{}{"name": "ticks"})
	assert.Error(t, err)
}
