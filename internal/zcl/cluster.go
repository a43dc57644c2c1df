package zcl

import "zigbee-relay/internal/wire"

// AttributeDef defines a ZCL attribute.
type AttributeDef struct {
	ID   uint16
	Name string
	Type uint8
}

// CommandDef defines a command and the layout of its arguments.
type CommandDef struct {
	ID                   uint8
	Name                 string
	Args                 wire.Schema
	ManufacturerSpecific bool
}

// ClusterDef defines a ZCL cluster with its attributes and the commands its
// server side accepts.
type ClusterDef struct {
	ID         uint16
	Name       string
	Attributes []AttributeDef
	Commands   []CommandDef
}

// FindAttribute looks up an attribute by ID.
func (c *ClusterDef) FindAttribute(id uint16) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].ID == id {
			return &c.Attributes[i]
		}
	}
	return nil
}

// FindCommand looks up a server command by ID.
func (c *ClusterDef) FindCommand(id uint8) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].ID == id {
			return &c.Commands[i]
		}
	}
	return nil
}

var clusters = map[uint16]*ClusterDef{
	ClusterOnOff: &OnOff,
}

// Lookup returns the definition of an implemented cluster.
func Lookup(id uint16) (*ClusterDef, bool) {
	c, ok := clusters[id]
	return c, ok
}
