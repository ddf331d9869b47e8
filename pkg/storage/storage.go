package storage

import (
	"time"
)

type StoreGroup byte

const (
	StoreGroupController StoreGroup = iota
	StoreGroupGateway
)

var (
	StoreGroupToString = map[StoreGroup]string{
		StoreGroupController: "controller",
		StoreGroupGateway:    "gateway",
	}
	StoreGroupFromString = map[string]StoreGroup{
		"controller": StoreGroupController,
		"gateway":    StoreGroupGateway,
	}
)

// resources
const (
	// controller
	Controllers = "controllers"
)

type Getter interface {
	Get(key string) (interface{}, error)
}

type Lister interface {
	List(key string) (interface{}, error)
}

type Creater interface {
	Create(key string, obj interface{}) (interface{}, error)
}

type Updater interface {
	Update(key, version string, obj interface{}) (interface{}, error)
}

type Deleter interface {
	Delete(key, version string) (interface{}, error)
}

type Storage interface {
	Getter
	Lister
	Creater
	Updater
	Deleter
}

type EventType int8

const (
	Create EventType = iota
	Update
	Remove
)

func (et EventType) String() string {
	return []string{
		"Create",
		"Update",
		"Remove",
	}[et]
}

type Event struct {
	Type EventType
	Data interface{}
}

type FileInfo struct {
	Path    string
	ModTime time.Time
}
