package store

import "time"

// Entry is one journaled dispatcher event.
type Entry struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	Event     string    `json:"event"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	ClusterID uint16    `json:"cluster_id"`
	ProfileID uint16    `json:"profile_id"`
	Endpoint  uint8     `json:"endpoint"`
}
