package runtime

import (
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"k8s.io/klog/v2"
)

type lessControllerFunc func(c1, c2 Controller) bool

type controllerSorter struct {
	cs        []Controller
	lessFuncs []lessControllerFunc
}

func ByController(less ...lessControllerFunc) *controllerSorter {
	return &controllerSorter{
		lessFuncs: less,
	}
}

func (cs *controllerSorter) Sort(controllers []Controller) {
	cs.cs = controllers
	sort.Sort(cs)
}

func (cs *controllerSorter) Len() int {
	return len(cs.cs)
}

func (cs *controllerSorter) Swap(i, j int) {
	cs.cs[i], cs.cs[j] = cs.cs[j], cs.cs[i]
}

func (cs *controllerSorter) Less(i, j int) bool {
	return cs.less(cs.cs[i], cs.cs[j])
}

func (cs *controllerSorter) less(p, q Controller) bool {
	// Try all but the last comparison.
	var k int
	for k = 0; k < len(cs.lessFuncs)-1; k++ {
		less := cs.lessFuncs[k]
		switch {
		case less(p, q):
			return true
		case less(q, p):
			return false
		}
	}
	return cs.lessFuncs[k](p, q)
}

func (cs *controllerSorter) Insert(controllers []Controller, c Controller) []Controller {
	i := sort.Search(len(controllers), func(i int) bool { return cs.less(controllers[i], c) })
	controllers = append(controllers, c)
	copy(controllers[i+1:], controllers[i:])
	controllers[i] = c
	return controllers
}

type NameFilterFunc struct {
	Eq         string
	In         []string
	Contains   string
	StartsWith string
	EndsWith   string
}

type ControllerFilter struct {
	Name  interface{}
	Id    string
	Model string
}

type predicateController func(c Controller) bool

func ParseControllerFilter(filter *ControllerFilter) []predicateController {
	predicates := make([]predicateController, 0)

	// id
	if len(filter.Id) > 0 {
		p := func(c Controller) bool {
			return filter.Id == c.GetID()
		}
		predicates = append(predicates, p)
	}

	// model
	if len(filter.Model) > 0 {
		p := func(c Controller) bool {
			return strings.HasPrefix(c.GetModel(), filter.Model)
		}
		predicates = append(predicates, p)
	}

	// name
	if filter.Name != nil {
		if name, ok := filter.Name.(string); ok {
			p := func(c Controller) bool {
				return name == c.GetName()
			}
			predicates = append(predicates, p)
		} else {
			var ff NameFilterFunc
			if err := mapstructure.Decode(filter.Name, &ff); err != nil {
				klog.V(3).InfoS("Failed to parse filter.name", "err", err)
			}
			// eq
			if len(ff.Eq) > 0 {
				p := func(c Controller) bool {
					return ff.Eq == c.GetName()
				}
				predicates = append(predicates, p)
			}
			// in
			if len(ff.In) > 0 {
				p := func(c Controller) bool {
					for _, name := range ff.In {
						if name == c.GetName() {
							return true
						}
					}
					return false
				}
				predicates = append(predicates, p)
			}
			// contains
			if len(ff.Contains) > 0 {
				p := func(c Controller) bool {
					return strings.Contains(c.GetName(), ff.Contains)
				}
				predicates = append(predicates, p)
			}
			// startsWith
			if len(ff.StartsWith) > 0 {
				p := func(c Controller) bool {
					return strings.HasPrefix(c.GetName(), strings.TrimSpace(ff.StartsWith))
				}
				predicates = append(predicates, p)
			}
			// endsWith
			if len(ff.EndsWith) > 0 {
				p := func(c Controller) bool {
					return strings.HasSuffix(c.GetName(), strings.TrimSpace(ff.EndsWith))
				}
				predicates = append(predicates, p)
			}
		}
	}

	return predicates
}
