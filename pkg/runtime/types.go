package runtime

import (
	"context"
	"net/url"

	"omrongateway/pkg/transport"
)

type LabeledCloser struct {
	Label  string
	Closer func(context.Context) error
}

type ResponseModel struct {
	Controllers interface{} `json:"controllers,omitempty"`
}

// PowerController is the persisted document for one registered G3PW.
type PowerController struct {
	ObjectMeta
	Address           string                   `json:"address"`
	UnitNo            int                      `json:"unitNo"`
	Model             string                   `json:"model"`
	Topic             string                   `json:"topic,omitempty"`
	Serial            *transport.SerialOptions `json:"serial,omitempty"`
	AcquisitionStatus string                   `json:"-"`
}

func (p *PowerController) GetAddress() string         { return p.Address }
func (p *PowerController) SetAddress(address string)  { p.Address = address }
func (p *PowerController) GetUnitNo() int             { return p.UnitNo }
func (p *PowerController) SetUnitNo(unitNo int)       { p.UnitNo = unitNo }
func (p *PowerController) GetModel() string           { return p.Model }
func (p *PowerController) SetModel(model string)      { p.Model = model }
func (p *PowerController) GetTopic() string           { return p.Topic }
func (p *PowerController) SetTopic(topic string)      { p.Topic = topic }
func (p *PowerController) GetAcquisitionStatus() string {
	return p.AcquisitionStatus
}
func (p *PowerController) SetAcquisitionStatus(status string) {
	p.AcquisitionStatus = status
}

// ControllerMeta is the folded list form of a PowerController.
type ControllerMeta struct {
	ObjectMeta
	Address           string `json:"address"`
	UnitNo            int    `json:"unitNo"`
	Model             string `json:"model"`
	AcquisitionStatus string `json:"acquisitionStatus"`
}

func (c *ControllerMeta) GetAddress() string        { return c.Address }
func (c *ControllerMeta) SetAddress(address string) { c.Address = address }
func (c *ControllerMeta) GetUnitNo() int            { return c.UnitNo }
func (c *ControllerMeta) SetUnitNo(unitNo int)      { c.UnitNo = unitNo }
func (c *ControllerMeta) GetModel() string          { return c.Model }
func (c *ControllerMeta) SetModel(model string)     { c.Model = model }
func (c *ControllerMeta) GetTopic() string          { return "" }
func (c *ControllerMeta) SetTopic(topic string)     {}
func (c *ControllerMeta) GetAcquisitionStatus() string {
	return c.AcquisitionStatus
}
func (c *ControllerMeta) SetAcquisitionStatus(status string) {
	c.AcquisitionStatus = status
}

type PublishData struct {
	Payload Payload `json:"payload"`
}

type Payload struct {
	Data []TimeSeriesData `json:"data"`
}

type TimeSeriesData struct {
	Timestamp Time        `json:"timestamp"`
	Values    []PointData `json:"values"`
}

type PointData struct {
	DataPointId string      `json:"dataPointId"`
	Value       interface{} `json:"value"`
}

type CreateOptions struct {
	Query url.Values
}

type GetOptions struct {
	Version string
	Query   url.Values
}

type ListOptions struct {
	Filter map[string]interface{}
	Query  url.Values
}

type UpdateOptions struct {
	Version string
	Query   url.Values
}

type DeleteOptions struct {
	Version string
	Query   url.Values
}
