package zcl

import "zigbee-relay/internal/wire"

// ClusterOnOff is the binary on/off control cluster.
const ClusterOnOff uint16 = 0x0006

// On/Off server command IDs.
const (
	OnOffOff                     uint8 = 0x00
	OnOffOn                      uint8 = 0x01
	OnOffToggle                  uint8 = 0x02
	OnOffOffWithEffect           uint8 = 0x40
	OnOffOnWithRecallGlobalScene uint8 = 0x41
	OnOffOnWithTimedOff          uint8 = 0x42
)

// AttrOnOff is the boolean state attribute of the On/Off cluster.
const AttrOnOff uint16 = 0x0000

var OnOff = ClusterDef{
	ID:   ClusterOnOff,
	Name: "On/Off",
	Attributes: []AttributeDef{
		{ID: AttrOnOff, Name: "on_off", Type: TypeBool},
		{ID: 0x4000, Name: "global_scene_control", Type: TypeBool},
		{ID: 0x4001, Name: "on_time", Type: TypeUint16},
		{ID: 0x4002, Name: "off_wait_time", Type: TypeUint16},
	},
	Commands: []CommandDef{
		{ID: OnOffOff, Name: "off"},
		{ID: OnOffOn, Name: "on"},
		{ID: OnOffToggle, Name: "toggle"},
		{ID: OnOffOffWithEffect, Name: "off_with_effect", Args: wire.Schema{
			{Name: "EffectID", Type: wire.Uint8},
			{Name: "EffectVariant", Type: wire.Uint8},
		}},
		{ID: OnOffOnWithRecallGlobalScene, Name: "on_with_recall_global_scene"},
		{ID: OnOffOnWithTimedOff, Name: "on_with_timed_off", Args: wire.Schema{
			{Name: "OnOffControl", Type: wire.Uint8},
			{Name: "OnTime", Type: wire.Uint16},
			{Name: "OffWaitTime", Type: wire.Uint16},
		}},
	},
}
