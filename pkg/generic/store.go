package generic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"omrongateway/pkg/runtime"
	"omrongateway/pkg/storage"
)

// Store persists controller documents under one resource directory.
type Store struct {
	Group    string
	Resource string
	client   storage.Storage
}

func NewStore(group string, resource string) (*Store, error) {
	s := &Store{
		Group:    group,
		Resource: resource,
	}

	client := &storage.FsClient{}
	client.Init(storage.StoreGroupFromString[group])
	s.client = client

	return s, nil
}

func (s *Store) Create(obj runtime.Controller) (save runtime.Controller, returnErr error) {
	accessor, _ := runtime.Accessor(obj)
	key := filepath.Join(s.Resource, fmt.Sprintf("%s.json", accessor.GetID()))
	if saved, err := s.client.Create(key, obj); err == nil {
		save = saved.(runtime.Controller)
	} else {
		returnErr = err
	}
	return
}

func (s *Store) Update(obj runtime.Controller) (update runtime.Controller, returnErr error) {
	accessor, _ := runtime.Accessor(obj)
	key := filepath.Join(s.Resource, fmt.Sprintf("%s.json", accessor.GetID()))
	if updated, err := s.client.Update(key, accessor.GetVersion(), obj); err == nil {
		update = updated.(runtime.Controller)
	} else {
		returnErr = err
	}
	return
}

func (s *Store) Delete(obj runtime.Controller) (deleted runtime.Controller, returnErr error) {
	accessor, _ := runtime.Accessor(obj)
	key := filepath.Join(s.Resource, fmt.Sprintf("%s.json", accessor.GetID()))
	if _, err := s.client.Delete(key, accessor.GetVersion()); err == nil {
		deleted = obj
	} else {
		returnErr = err
	}
	return
}

func (s *Store) LoadResource() ([]runtime.Controller, error) {
	objs, err := s.client.List(s.Resource)
	if err != nil {
		return nil, err
	}

	var ret []runtime.Controller
	if files, ok := objs.([]*storage.FileInfo); ok {
		for _, file := range files {
			func() {
				obj := &runtime.PowerController{}
				f, err := os.Open(file.Path)
				if err != nil {
					klog.V(2).InfoS("Failed to open", "file", file.Path, "resource", s.Resource, "err", err)
					return
				}
				defer f.Close()
				if err = json.NewDecoder(f).Decode(obj); err != nil {
					klog.V(3).InfoS("Failed to unmarshal", "file", file.Path, "resource", s.Resource, "err", err)
					return
				}
				ret = append(ret, obj)
			}()
		}
	}
	return ret, nil
}
