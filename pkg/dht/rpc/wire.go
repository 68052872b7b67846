// Package rpc is the wire layer RemoteNode speaks to reach another
// peer: JSON-over-HTTP with context-aware deadlines, the same shape as
// pkg/rpc/http_remote.go generalized from string keys/values to RIDs and
// record bytes.
package rpc

import "autosharddb/pkg/types"

type ridWire struct {
	ClusterID       int16 `json:"cluster_id"`
	ClusterPosition int64 `json:"cluster_position"`
}

func toWire(rid types.RID) ridWire {
	return ridWire{ClusterID: int16(rid.ClusterID), ClusterPosition: int64(rid.ClusterPosition)}
}

func (w ridWire) toRID() types.RID {
	return types.RID{ClusterID: types.ClusterID(w.ClusterID), ClusterPosition: types.ClusterPosition(w.ClusterPosition)}
}

type createRequest struct {
	StorageName string  `json:"storage_name"`
	RID         ridWire `json:"rid"`
	Content     []byte  `json:"content"`
	Version     uint32  `json:"version"`
	RecordType  byte    `json:"record_type"`
}

type createResponse struct {
	DataSegmentID  int32  `json:"data_segment_id"`
	DataSegmentPos int64  `json:"data_segment_pos"`
	RecordType     byte   `json:"record_type"`
	RecordVersion  uint32 `json:"record_version"`
}

type readRequest struct {
	StorageName string  `json:"storage_name"`
	RID         ridWire `json:"rid"`
}

type readResponse struct {
	Content    []byte `json:"content"`
	RecordType byte   `json:"record_type"`
	Version    uint32 `json:"version"`
}

type updateRequest struct {
	StorageName string  `json:"storage_name"`
	RID         ridWire `json:"rid"`
	Content     []byte  `json:"content"`
	Version     uint32  `json:"version"`
	RecordType  byte    `json:"record_type"`
}

type updateResponse struct {
	Version uint32 `json:"version"`
}

type deleteRequest struct {
	StorageName string  `json:"storage_name"`
	RID         ridWire `json:"rid"`
	Version     uint32  `json:"version"`
	Forwarded   bool    `json:"forwarded"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

type errorResponse struct {
	Error string `json:"error"`
}
