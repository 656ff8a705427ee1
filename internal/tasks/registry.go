package tasks

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Registry 任务名到任务定义的静态映射, 启动时构建
type Registry struct {
	definitions map[string]Definition
}

// NewRegistry 创建注册表, 名称重复时返回错误
func NewRegistry(definitions ...Definition) (*Registry, error) {
	r := &Registry{definitions: make(map[string]Definition, len(definitions))}
	for _, def := range definitions {
		if _, exists := r.definitions[def.Name()]; exists {
			return nil, fmt.Errorf("task %q registered twice", def.Name())
		}
		r.definitions[def.Name()] = def
	}
	return r, nil
}

// DefaultRegistry 返回内置任务
func DefaultRegistry(logger logrus.FieldLogger) (*Registry, error) {
	return NewRegistry(
		NewExample(logger),
	)
}

// Lookup 根据名称查找任务定义
func (r *Registry) Lookup(name string) (Definition, error) {
	def, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return def, nil
}

// All 按名称排序返回所有任务定义
func (r *Registry) All() []Definition {
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.definitions[name])
	}
	return defs
}
