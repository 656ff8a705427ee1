package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ErrNoInputs 输入文件中没有任何条目
var ErrNoInputs = errors.New("no inputs")

// LoadInputs 读取批次输入, 文件内容是一个列表, 每个元素生成一个 HIT
// JSON 是 YAML 的子集, 两种格式都可以
func LoadInputs(r io.Reader) ([]json.RawMessage, error) {
	var items []interface{}
	if err := yaml.NewDecoder(r).Decode(&items); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoInputs
		}
		return nil, fmt.Errorf("failed to decode inputs: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoInputs
	}

	inputs := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		inputs = append(inputs, raw)
	}
	return inputs, nil
}
