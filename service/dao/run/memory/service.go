// Package memory keeps scenario run records in process.
package memory

import (
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/dao"
	"github.com/viant/faultsim/service/dao/criteria"
	"github.com/viant/faultsim/service/dao/store"
)

// Service stores live run records. Load and List return clones, so readers
// never observe a record while a worker mutates it.
type Service struct {
	*store.MemoryStore[string, model.Run]
}

var _ dao.Service[string, model.Run] = (*Service)(nil)

// New creates an empty run store.
func New() *Service {
	return &Service{
		MemoryStore: store.NewMemoryStore(
			func(r *model.Run) string { return r.ID },
			store.WithClone[string](func(r *model.Run) *model.Run { return r.Clone() }),
			store.WithFilter[string](match),
			store.WithOrder[string](func(a, b *model.Run) bool { return a.Seq < b.Seq }),
		),
	}
}

func match(r *model.Run, parameters []*dao.Parameter) bool {
	return criteria.FilterByState(string(r.GetState()), parameters) &&
		criteria.FilterByScenario(string(r.Scenario), parameters)
}
