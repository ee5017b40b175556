package rulelist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

func mustItem(t *testing.T, line string) Item {
	t.Helper()
	r, err := rule.ParseLine(line)
	require.NoError(t, err)
	return NewItem(r, resource.SourceManual)
}

func lines(m *Manager) []string {
	var out []string
	for _, it := range m.All() {
		out = append(out, it.Rule.String())
	}
	return out
}

func newTestManager(t *testing.T, ls ...string) *Manager {
	t.Helper()
	m := NewManager()
	for _, l := range ls {
		m.Append(mustItem(t, l))
	}
	return m
}

func assertPriorities(t *testing.T, m *Manager) {
	t.Helper()
	for i, e := range m.ToOrderedList() {
		assert.Equal(t, i, e.Priority)
	}
}

func TestManager_InsertRemove(t *testing.T) {
	m := newTestManager(t, "DOMAIN,a,DIRECT", "DOMAIN,c,DIRECT")

	require.NoError(t, m.InsertAt(mustItem(t, "DOMAIN,b,DIRECT"), 1))
	require.NoError(t, m.InsertAt(mustItem(t, "DOMAIN,d,DIRECT"), 3))
	assert.Equal(t, []string{"DOMAIN,a,DIRECT", "DOMAIN,b,DIRECT", "DOMAIN,c,DIRECT", "DOMAIN,d,DIRECT"}, lines(m))

	it, err := m.RemoveAt(0)
	require.NoError(t, err)
	assert.Equal(t, "DOMAIN,a,DIRECT", it.Rule.String())
	assertPriorities(t, m)

	t.Run("越界", func(t *testing.T) {
		err := m.InsertAt(mustItem(t, "DOMAIN,x,DIRECT"), 10)
		assert.True(t, errors.Is(err, apperrors.ErrIndex))
		_, err = m.RemoveAt(-1)
		assert.True(t, errors.Is(err, apperrors.ErrIndex))
		_, err = m.RemoveAt(m.Len())
		assert.True(t, errors.Is(err, apperrors.ErrIndex))
		assert.Equal(t, 3, m.Len())
	})
}

func TestManager_UpdateAt(t *testing.T) {
	t.Run("原地替換", func(t *testing.T) {
		m := newTestManager(t, "DOMAIN,a,DIRECT", "DOMAIN,b,DIRECT")
		require.NoError(t, m.UpdateAt(mustItem(t, "DOMAIN,a,REJECT"), 0, 0))
		assert.Equal(t, []string{"DOMAIN,a,REJECT", "DOMAIN,b,DIRECT"}, lines(m))
	})

	t.Run("向後移動", func(t *testing.T) {
		m := newTestManager(t, "DOMAIN,a,DIRECT", "DOMAIN,b,DIRECT", "DOMAIN,c,DIRECT")
		require.NoError(t, m.UpdateAt(mustItem(t, "DOMAIN,x,DIRECT"), 0, 2))
		assert.Equal(t, []string{"DOMAIN,b,DIRECT", "DOMAIN,c,DIRECT", "DOMAIN,x,DIRECT"}, lines(m))
	})

	t.Run("向前移動", func(t *testing.T) {
		m := newTestManager(t, "DOMAIN,a,DIRECT", "DOMAIN,b,DIRECT", "DOMAIN,c,DIRECT")
		require.NoError(t, m.UpdateAt(mustItem(t, "DOMAIN,x,DIRECT"), 2, 0))
		assert.Equal(t, []string{"DOMAIN,x,DIRECT", "DOMAIN,a,DIRECT", "DOMAIN,b,DIRECT"}, lines(m))
	})

	t.Run("越界不修改", func(t *testing.T) {
		m := newTestManager(t, "DOMAIN,a,DIRECT")
		err := m.UpdateAt(mustItem(t, "DOMAIN,x,DIRECT"), 0, 1)
		assert.True(t, errors.Is(err, apperrors.ErrIndex))
		assert.Equal(t, []string{"DOMAIN,a,DIRECT"}, lines(m))
	})
}

func TestManager_Reorder(t *testing.T) {
	m := newTestManager(t, "DOMAIN,a,DIRECT", "DOMAIN,b,DIRECT", "DOMAIN,c,DIRECT", "DOMAIN,d,DIRECT")

	moved, err := m.Reorder(3, 1)
	require.NoError(t, err)
	assert.Equal(t, "DOMAIN,d,DIRECT", moved.Rule.String())
	assert.Equal(t, []string{"DOMAIN,a,DIRECT", "DOMAIN,d,DIRECT", "DOMAIN,b,DIRECT", "DOMAIN,c,DIRECT"}, lines(m))

	_, err = m.Reorder(0, 4)
	assert.True(t, errors.Is(err, apperrors.ErrIndex))
	_, err = m.Reorder(5, 0)
	assert.True(t, errors.Is(err, apperrors.ErrIndex))
}

func TestManager_PriorityIntegrity(t *testing.T) {
	m := newTestManager(t, "DOMAIN,a,DIRECT", "DOMAIN,b,DIRECT", "DOMAIN,c,DIRECT")

	ops := []func(){
		func() { _ = m.InsertAt(mustItem(t, "DOMAIN,x,DIRECT"), 0) },
		func() { _, _ = m.Reorder(0, 3) },
		func() { _, _ = m.RemoveAt(1) },
		func() { _ = m.InsertAt(mustItem(t, "DOMAIN,y,DIRECT"), m.Len()) },
		func() { _, _ = m.Reorder(m.Len()-1, 0) },
		func() { _ = m.UpdateAt(mustItem(t, "DOMAIN,z,DIRECT"), 1, 2) },
		func() { _, _ = m.RemoveAt(0) },
	}
	for _, op := range ops {
		op()
		list := m.ToOrderedList()
		require.Len(t, list, m.Len())
		for i, e := range list {
			assert.Equal(t, i, e.Priority)
		}
	}
}

func TestManager_Filters(t *testing.T) {
	m := newTestManager(t,
		"DOMAIN,a,DIRECT",
		"RULE-SET,ads,REJECT",
		"DOMAIN-SUFFIX,b,Proxy",
		"RULE-SET,cn,DIRECT",
		"MATCH,Proxy",
	)

	byAction := m.FilterByAction(rule.ActionDirect)
	require.Len(t, byAction, 2)
	assert.Equal(t, 0, byAction[0].Priority)
	assert.Equal(t, 3, byAction[1].Priority)

	byType := m.FilterByType(rule.KindRuleSet)
	require.Len(t, byType, 2)
	assert.Equal(t, 1, byType[0].Priority)

	assert.True(t, m.HasEquivalent(rule.SimpleRule{Kind: rule.KindDomainSuffix, Payload: "b", Action: "Proxy"}))
	assert.False(t, m.HasEquivalent(rule.SimpleRule{Kind: rule.KindDomainSuffix, Payload: "b", Action: "DIRECT"}))

	n := m.RemoveWhere(func(it Item) bool { return it.Rule.Type() == rule.KindRuleSet })
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"DOMAIN,a,DIRECT", "DOMAIN-SUFFIX,b,Proxy", "MATCH,Proxy"}, lines(m))
}

func TestManager_ToOrderedList(t *testing.T) {
	m := newTestManager(t, "AND,(DOMAIN,a),(NETWORK,UDP),REJECT", "IP-CIDR,1.0.0.0/8,DIRECT,no-resolve")

	list := m.ToOrderedList()
	require.Len(t, list, 2)
	assert.Equal(t, "AND", list[0].Type)
	assert.Equal(t, []string{"DOMAIN,a", "NETWORK,UDP"}, list[0].Conditions)
	assert.Equal(t, 1, list[1].Priority)
	assert.Equal(t, "no-resolve", list[1].AdditionalParams)
	assert.Equal(t, resource.SourceManual, list[1].Metadata.Source)
}

func TestManager_CloneAndYAML(t *testing.T) {
	m := newTestManager(t, "DOMAIN,a,DIRECT", "SUB-RULE,(NETWORK,TCP),sub", "MATCH,Proxy")
	item, _ := m.At(0)
	item.Metadata.InvisibleTo = []string{"stash"}
	require.NoError(t, m.UpdateAt(item, 0, 0))

	t.Run("克隆互不影響", func(t *testing.T) {
		c := m.Clone()
		_, _ = c.RemoveAt(0)
		assert.Equal(t, 3, m.Len())
		assert.Equal(t, 2, c.Len())
	})

	t.Run("YAML往返", func(t *testing.T) {
		data, err := yaml.Marshal(m)
		require.NoError(t, err)
		assert.Contains(t, string(data), "rule: DOMAIN,a,DIRECT")

		var back Manager
		require.NoError(t, yaml.Unmarshal(data, &back))
		assert.Equal(t, lines(m), lines(&back))
		got, _ := back.At(0)
		assert.Equal(t, []string{"stash"}, got.Metadata.InvisibleTo)
	})

	t.Run("損壞規則", func(t *testing.T) {
		var back Manager
		err := yaml.Unmarshal([]byte("- rule: 'AND,((DOMAIN,a),DIRECT'\n"), &back)
		assert.True(t, errors.Is(err, apperrors.ErrParse))
	})
}

func TestManager_Available(t *testing.T) {
	m := newTestManager(t, "DOMAIN,a,DIRECT", "DOMAIN,b,DIRECT")
	item, _ := m.At(0)
	item.Metadata.Disabled = true
	require.NoError(t, m.UpdateAt(item, 0, 0))

	var got []string
	for it := range m.Available("clash") {
		got = append(got, it.Rule.String())
	}
	assert.Equal(t, []string{"DOMAIN,b,DIRECT"}, got)
}
