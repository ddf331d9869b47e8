package config

import (
	"omrongateway/pkg/device"
	"omrongateway/pkg/gateway"
)

type Config struct {
	DeviceMgr  *device.Manager
	GatewayMgr *gateway.Manager
	CertFile   string
	KeyFile    string
}
