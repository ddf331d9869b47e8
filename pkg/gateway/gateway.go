package gateway

import "omrongateway/pkg/runtime"

// GatewayMeta identifies this gateway instance. The ID seeds the default
// MQTT data topics for registered controllers.
type GatewayMeta struct {
	Secret string `json:"secret"`
	runtime.ObjectMeta
}

type ResponseModel struct {
	Cpus  interface{} `json:"cpus,omitempty"`
	Mem   interface{} `json:"mem,omitempty"`
	Disks interface{} `json:"disk,omitempty"`
}

type MemUsageInfo struct {
	Total       string
	Used        string
	UsedPercent string
}

type DiskUsageInfo struct {
	Total       string
	Used        string
	UsedPercent string
}

const gateway = "meta"
