package cim_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/hvctl/pkg/cim"
	"github.com/javanstorm/hvctl/pkg/cim/memscope"
)

func TestTraverse(t *testing.T) {
	g := newGraph(t)

	tests := []struct {
		name string
		root cim.ManagedObject
		path cim.Path
		want [][]cim.ManagedObject
	}{
		{
			name: "related fan out",
			root: g.vm,
			path: cim.Path{
				cim.Related("Msvm_VirtualSystemSettingData"),
				cim.Related("Msvm_SyntheticEthernetPortSettingData"),
			},
			want: [][]cim.ManagedObject{
				{g.settings, g.port1},
				{g.settings, g.port2},
			},
		},
		{
			name: "property selector",
			root: g.vm,
			path: cim.Path{
				cim.Related("Msvm_VirtualSystemSettingData"),
				cim.Related("Msvm_SyntheticEthernetPortSettingData").Filter(cim.PropertySelector{"ElementName": "eth1"}),
			},
			want: [][]cim.ManagedObject{{g.settings, g.port2}},
		},
		{
			name: "expression selector",
			root: g.settings,
			path: cim.Path{
				cim.Related("Msvm_SyntheticEthernetPortSettingData").Filter(cim.MustWhere(`Address == "00155D000001"`)),
			},
			want: [][]cim.ManagedObject{{g.port1}},
		},
		{
			name: "reference property",
			root: g.settings,
			path: cim.Path{
				cim.Related("Msvm_EthernetPortAllocationSettingData"),
				cim.Ref("HostResource"),
			},
			want: [][]cim.ManagedObject{{g.alloc, g.sw}},
		},
		{
			name: "nothing matches",
			root: g.vm,
			path: cim.Path{
				cim.Related("Msvm_VirtualSystemSettingData"),
				cim.Related("Msvm_SyntheticEthernetPortSettingData").Filter(cim.PropertySelector{"ElementName": "eth9"}),
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cim.Traverse(bg, tt.root, tt.path)
			require.NoError(t, err)
			if diff := cmp.Diff(paths(tt.want), paths(got)); diff != "" {
				t.Errorf("Traverse() mismatch (-want +got):\n%s", diff)
			}
			for _, trail := range got {
				assert.Len(t, trail, len(tt.path))
			}
		})
	}
}

func TestTraverseRelationship(t *testing.T) {
	g := newGraph(t)

	got, err := cim.Traverse(bg, g.settings, cim.Path{
		cim.Relationship("Msvm_VirtualSystemSettingDataComponent"),
		cim.Ref("PartComponent").Filter(cim.PropertySelector{"ElementName": "eth0"}),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Msvm_VirtualSystemSettingDataComponent", got[0][0].ClassName())
	assert.True(t, cim.SameObject(g.port1, cim.Leaf(got[0])))
}

func TestTraverseEmptyPath(t *testing.T) {
	g := newGraph(t)

	_, err := cim.Traverse(bg, g.vm, nil)
	assert.ErrorIs(t, err, cim.ErrEmptyPath)
}

func TestTraverseMissingPropertyIsLoud(t *testing.T) {
	g := newGraph(t)

	_, err := cim.Traverse(bg, g.vm, cim.Path{
		cim.Related("Msvm_VirtualSystemSettingData"),
		cim.Ref("NoSuchThing"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cim.ErrNoSuchProperty)
	assert.Contains(t, err.Error(), "step 2")
}

func TestTraverseCancelled(t *testing.T) {
	g := newGraph(t)
	ctx, cancel := context.WithCancel(bg)
	cancel()

	_, err := cim.Traverse(ctx, g.vm, cim.Path{
		cim.Related("Msvm_VirtualSystemSettingData"),
		cim.Related("Msvm_SyntheticEthernetPortSettingData"),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTraverseDeepPath(t *testing.T) {
	s := memscope.New("HV01")
	s.Define(
		&memscope.Class{
			Name:       "Test_Node",
			Properties: []memscope.PropertyDef{{Name: "ID", Type: cim.TypeUInt32, Key: true}},
		},
		&memscope.Class{
			Name:        "Test_Link",
			Association: true,
			Properties: []memscope.PropertyDef{
				{Name: "Antecedent", Type: cim.TypeReference, Key: true},
				{Name: "Dependent", Type: cim.TypeReference, Key: true},
			},
		},
	)

	const depth = 200
	root, err := s.Create("Test_Node", map[string]any{"ID": 0})
	require.NoError(t, err)
	prev := root
	for i := 1; i <= depth; i++ {
		next, err := s.Create("Test_Node", map[string]any{"ID": i})
		require.NoError(t, err)
		require.NoError(t, s.Associate("Test_Link", "Antecedent", prev, "Dependent", next))
		prev = next
	}

	path := make(cim.Path, depth)
	for i := range path {
		path[i] = &cim.RelatedNode{Query: cim.AssociationQuery{RelatedClass: "Test_Node", RelatedRole: "Dependent"}}
	}
	got, err := cim.Traverse(bg, root, path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0], depth)
	n, _ := cim.GetInt(cim.Leaf(got[0]), "ID")
	assert.Equal(t, depth, n)
}

// echoObject reports itself among its related objects, the way symmetric
// associations do.
type echoObject struct {
	*memscope.Object
	other cim.ManagedObject
}

func (e *echoObject) Related(ctx context.Context, q cim.AssociationQuery) ([]cim.ManagedObject, error) {
	return []cim.ManagedObject{e, e.other}, nil
}

func (e *echoObject) Relationships(ctx context.Context, q cim.AssociationQuery) ([]cim.ManagedObject, error) {
	links, err := e.Object.Relationships(ctx, q)
	if err != nil {
		return nil, err
	}
	return append([]cim.ManagedObject{e}, links...), nil
}

func TestTraverseExcludesSource(t *testing.T) {
	g := newGraph(t)
	acceptAll := cim.SelectorFunc(func(cim.ManagedObject) bool { return true })

	t.Run("related", func(t *testing.T) {
		root := &echoObject{Object: g.port1, other: g.port2}
		got, err := cim.Traverse(bg, root, cim.Path{cim.Related("Msvm_SyntheticEthernetPortSettingData")})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, cim.SameObject(g.port2, cim.Leaf(got[0])))
	})

	t.Run("related with accepting selector", func(t *testing.T) {
		root := &echoObject{Object: g.port1, other: g.port2}
		got, err := cim.Traverse(bg, root, cim.Path{
			cim.Related("Msvm_SyntheticEthernetPortSettingData").Filter(acceptAll),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, cim.SameObject(g.port2, cim.Leaf(got[0])))
	})

	t.Run("relationship", func(t *testing.T) {
		root := &echoObject{Object: g.settings}
		for _, node := range []*cim.RelationshipNode{
			cim.Relationship("Msvm_VirtualSystemSettingDataComponent"),
			cim.Relationship("Msvm_VirtualSystemSettingDataComponent").Filter(acceptAll),
		} {
			got, err := cim.Traverse(bg, root, cim.Path{node})
			require.NoError(t, err)
			require.NotEmpty(t, got)
			for _, trail := range got {
				assert.False(t, cim.SameObject(root, cim.Leaf(trail)), "source object returned by %s", node)
				assert.Equal(t, "Msvm_VirtualSystemSettingDataComponent", cim.Leaf(trail).ClassName())
			}
		}
	})
}

func TestTraversePathCount(t *testing.T) {
	s := memscope.New("HV01")
	s.Define(
		&memscope.Class{
			Name:       "Test_Node",
			Properties: []memscope.PropertyDef{{Name: "ID", Type: cim.TypeUInt32, Key: true}},
		},
		&memscope.Class{
			Name:        "Test_Link",
			Association: true,
			Properties: []memscope.PropertyDef{
				{Name: "Antecedent", Type: cim.TypeReference, Key: true},
				{Name: "Dependent", Type: cim.TypeReference, Key: true},
			},
		},
	)

	// Two children under the root, three grandchildren under each.
	id := 0
	node := func() *memscope.Object {
		obj, err := s.Create("Test_Node", map[string]any{"ID": id})
		require.NoError(t, err)
		id++
		return obj
	}
	root := node()
	for range 2 {
		child := node()
		require.NoError(t, s.Associate("Test_Link", "Antecedent", root, "Dependent", child))
		for range 3 {
			require.NoError(t, s.Associate("Test_Link", "Antecedent", child, "Dependent", node()))
		}
	}

	step := func() cim.Node {
		return &cim.RelatedNode{Query: cim.AssociationQuery{RelatedClass: "Test_Node", RelatedRole: "Dependent"}}
	}
	got, err := cim.Traverse(bg, root, cim.Path{step(), step()})
	require.NoError(t, err)
	require.Len(t, got, 2*3)

	seen := map[string]bool{}
	for _, trail := range got {
		require.Len(t, trail, 2)
		seen[cim.Leaf(trail).Path()] = true
	}
	assert.Len(t, seen, 6, "every complete path ends on a distinct grandchild")
}

func TestGetChild(t *testing.T) {
	g := newGraph(t)

	t.Run("single", func(t *testing.T) {
		child, err := cim.GetChild(bg, g.vm, cim.Path{cim.Related("Msvm_VirtualSystemSettingData")})
		require.NoError(t, err)
		assert.True(t, cim.SameObject(g.settings, child))
	})

	t.Run("none", func(t *testing.T) {
		child, err := cim.GetChild(bg, g.vm, cim.Path{cim.Related("Msvm_VirtualEthernetSwitch")})
		require.NoError(t, err)
		assert.Nil(t, child)
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := cim.GetChild(bg, g.settings, cim.Path{cim.Related("Msvm_SyntheticEthernetPortSettingData")})
		assert.ErrorIs(t, err, cim.ErrAmbiguousResult)
	})
}

func TestTraverseObserver(t *testing.T) {
	g := newGraph(t)
	obs := &recordingObserver{}
	e := &cim.Engine{Observer: obs}

	children, err := e.Children(bg, g.settings, cim.Related("Msvm_SyntheticEthernetPortSettingData"))
	require.NoError(t, err)
	assert.Len(t, children, 2)
	assert.Equal(t, []int{2}, obs.traversals)
}

func TestPathString(t *testing.T) {
	path := cim.Path{
		cim.Related("Msvm_VirtualSystemSettingData"),
		cim.Relationship("Msvm_VirtualSystemSettingDataComponent").Filter(cim.MustWhere("ValueRole == 0")),
		cim.Ref("PartComponent"),
	}
	want := "related:Msvm_VirtualSystemSettingData/relationship:Msvm_VirtualSystemSettingDataComponent[ValueRole == 0]/property:PartComponent"
	assert.Equal(t, want, fmt.Sprint(path))
}
