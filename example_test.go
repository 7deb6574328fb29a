package deltapack_test

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/chunk"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/manager"
	"github.com/arloliu/deltapack/model"
	"github.com/arloliu/deltapack/policy"
	"github.com/arloliu/deltapack/registry"
)

type door struct {
	open   bool
	hp     int64
	locked bool
	owner  uint32
}

func (d *door) NetSerialize(s chunk.Serializer, _ uint8) error {
	if err := chunk.Bool(s, "open", "", &d.open); err != nil {
		return err
	}
	if err := chunk.Int(s, "hp", "hp", format.TypeUint8, &d.hp); err != nil {
		return err
	}

	return chunk.Group(s, "lock", &d.locked, func() error {
		return chunk.Ref(s, "owner", "owner", &d.owner)
	})
}

func Example() {
	reg, _ := registry.New()
	_ = reg.LoadDocument([]byte(`
policies:
  - {name: hp, impl: ranged_int, params: {min: 0, max: 200}}
  - {name: owner, impl: recent_id}
`))
	m, _ := manager.New(reg, nil, manager.WithIntegrity(true))

	sent := &door{hp: 150, locked: true, owner: 42}
	txSet, _ := m.NewMementos(sent, 0)
	rxSet, _ := m.NewMementos(sent, 0)

	enc := arith.NewEncoder()
	defer enc.Release()
	if err := m.WriteObject(enc, 9, sent, 0, txSet, policy.Call{Age: 1, Model: model.NewChannelModel()}); err != nil {
		fmt.Println(err)
		return
	}

	dec := arith.NewDecoder(enc.Finish())
	h, _ := manager.ReadHeader(dec)
	got := &door{}
	if err := m.ReadObject(dec, h, got, rxSet, policy.Call{Age: 1, Model: model.NewChannelModel()}); err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("object %d: open=%v hp=%d locked=%v owner=%d\n", h.ObjectID, got.open, got.hp, got.locked, got.owner)
	// Output: object 9: open=false hp=150 locked=true owner=42
}
