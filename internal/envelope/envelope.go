// Package envelope defines the signaling wire format exchanged between a
// room member and the relay during voice broadcast negotiation.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Kind identifies the signaling message variant.
type Kind string

const (
	KindOffer            Kind = "webRTC-offer"
	KindAnswer           Kind = "webRTC-answer"
	KindCandidate        Kind = "webRTC-candidate"
	KindUserJoined       Kind = "user-joined"
	KindUserLeft         Kind = "user-left"
	KindJoinChannel      Kind = "join-channel-request"
	KindLeaveChannel     Kind = "leave-channel-request"
	KindStartedBroadcast Kind = "started-broadcast"
)

// Valid reports whether k is one of the defined signaling kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindOffer, KindAnswer, KindCandidate,
		KindUserJoined, KindUserLeft,
		KindJoinChannel, KindLeaveChannel, KindStartedBroadcast:
		return true
	}
	return false
}

// Envelope is the JSON structure exchanged over the WebSocket. It is a
// tagged union: Kind selects the variant and the other fields are populated
// per kind, with omitempty keeping absent fields off the wire.
//
// BroadcasterID and ReceiverID are routing hints for the relay; the relay
// stamps UserID with the identity of the member that sent the envelope
// before fanning it out, so receivers can key their connection lookups.
type Envelope struct {
	Kind          Kind   `json:"kind"`
	BroadcasterID string `json:"broadcasterId,omitempty"`
	ReceiverID    string `json:"receiverId,omitempty"`
	UserID        string `json:"userId,omitempty"`

	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// Encode serializes an Envelope for WebSocket transmission.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode deserializes an Envelope. Envelopes with an unknown kind decode
// without error — consumers are expected to drop them, since the relay fans
// every message out to all room members regardless of role.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
