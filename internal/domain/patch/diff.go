package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wI2L/jsondiff"
)

// operation RFC 6902 操作
type operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

// MarshalJSON remove 操作不輸出 value，其餘操作即使 value 為 null 也要輸出
func (o operation) MarshalJSON() ([]byte, error) {
	type plain struct {
		Op   string `json:"op"`
		Path string `json:"path"`
		From string `json:"from,omitempty"`
	}
	type withValue struct {
		plain
		Value any `json:"value"`
	}
	p := plain{Op: o.Op, Path: o.Path, From: o.From}
	if o.Op == "remove" || o.Op == "move" || o.Op == "copy" {
		return json.Marshal(p)
	}
	return json.Marshal(withValue{plain: p, Value: o.Value})
}

// diff 計算 source -> target 的 JSON Patch，
// 落在列表字段內部的操作合併為該字段的整體 add / replace / remove
func diff(source, target any) ([]operation, error) {
	src, err := toJSON(source)
	if err != nil {
		return nil, err
	}
	dst, err := toJSON(target)
	if err != nil {
		return nil, err
	}

	raw, err := jsondiff.CompareJSON(src, dst)
	if err != nil {
		return nil, fmt.Errorf("計算差異失敗: %w", err)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var ops []operation
	if err := json.Unmarshal(buf, &ops); err != nil {
		return nil, fmt.Errorf("解析差異失敗: %w", err)
	}

	srcDoc, err := decode(src)
	if err != nil {
		return nil, err
	}
	dstDoc, err := decode(dst)
	if err != nil {
		return nil, err
	}
	return collapse(ops, srcDoc, dstDoc), nil
}

func collapse(ops []operation, src, dst any) []operation {
	var out []operation
	done := make(map[string]bool)

	for _, op := range ops {
		tokens := splitPointer(op.Path)
		field := listField(tokens, src, dst)
		if field == nil {
			out = append(out, op)
			continue
		}

		path := joinPointer(field)
		if done[path] {
			continue
		}
		done[path] = true

		_, inSrc := lookup(src, field)
		dv, inDst := lookup(dst, field)
		switch {
		case inSrc && inDst:
			out = append(out, operation{Op: "replace", Path: path, Value: dv})
		case inDst:
			out = append(out, operation{Op: "add", Path: path, Value: dv})
		case inSrc:
			out = append(out, operation{Op: "remove", Path: path})
		}
	}
	return out
}

// listField 返回路徑上第一個在任一文檔中取值為數組的前綴
func listField(tokens []string, src, dst any) []string {
	for i := 1; i <= len(tokens); i++ {
		prefix := tokens[:i]
		if v, ok := lookup(src, prefix); ok && isArray(v) {
			return prefix
		}
		if v, ok := lookup(dst, prefix); ok && isArray(v) {
			return prefix
		}
	}
	return nil
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

func lookup(doc any, tokens []string) (any, bool) {
	cur := doc
	for _, tok := range tokens {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[tok]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			var idx int
			if _, err := fmt.Sscanf(tok, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

var (
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
)

func splitPointer(p string) []string {
	if p == "" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range parts {
		parts[i] = pointerUnescaper.Replace(s)
	}
	return parts
}

func joinPointer(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(pointerEscaper.Replace(t))
	}
	return b.String()
}

func toJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化 JSON 失敗: %w", err)
	}
	return data, nil
}

// decode 解析 JSON，整數保持為 int64，避免寫回 YAML 時變成浮點數
func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("解析 JSON 失敗: %w", err)
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, c := range node {
			node[k] = normalize(c)
		}
		return node
	case []any:
		for i, c := range node {
			node[i] = normalize(c)
		}
		return node
	case json.Number:
		if n, err := node.Int64(); err == nil {
			return int(n)
		}
		f, _ := node.Float64()
		return f
	}
	return v
}
