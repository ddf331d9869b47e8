package v1

// PowerController is the request body for registering one G3PW controller.
type PowerController struct {
	PublishMeta
	Name    string         `json:"name" binding:"required,min=1,max=64,excludesall=\u002F\u005C"`
	Address *SerialAddress `json:"address" binding:"required"`
	UnitNo  int            `json:"unitNo" binding:"gte=0,lte=99"`
}

type PublishMeta struct {
	Topic string `json:"topic"`
}

type SerialAddress struct {
	Location string               `json:"location" binding:"required"`
	Option   *SerialAddressOption `json:"option,omitempty"`
}

type SerialAddressOption struct {
	BaudRate int    `json:"baudRate,omitempty"`
	DataBits int    `json:"dataBits,omitempty"`
	Parity   string `json:"parity,omitempty"`
	StopBits string `json:"stopBits,omitempty"`
}

// Acquisition configures one polling run for a registered controller.
type Acquisition struct {
	Rate      float64  `json:"rate" binding:"required,gt=0,lte=8"`
	Duration  string   `json:"duration" binding:"required"`
	Variables []string `json:"variables,omitempty"`
}
