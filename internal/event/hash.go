package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for changing the algorithm later.
const (
	DomainInvocation = "settle/invocation/v1"
	DomainRecord     = "settle/record/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null separator
// keeps domain and data from running into each other.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID is the opaque identity of one invocation. Two calls with the
// same actor, target and params have the same ID.
type InvocationID string

// Short returns an abbreviated form for logs.
func (id InvocationID) Short() string {
	if len(id) > 12 {
		return string(id[:12])
	}
	return string(id)
}

// Call describes an invocation: who (Actor) invoked what (Target) with which
// parameters.
type Call struct {
	Actor  string `json:"actor"`
	Target string `json:"target"`
	Params Object `json:"params,omitempty"`
}

// ID computes the content-addressed InvocationID of the call.
func (c Call) ID() (InvocationID, error) {
	params := c.Params
	if params == nil {
		params = Object{}
	}
	canonical, err := MarshalCanonical(Object{
		"actor":  String(c.Actor),
		"target": String(c.Target),
		"params": params,
	})
	if err != nil {
		return "", fmt.Errorf("invocation id: %w", err)
	}
	return InvocationID(hashWithDomain(DomainInvocation, canonical)), nil
}

// MustID is like ID but panics on error.
// Use only in tests or when params are known to be valid.
func (c Call) MustID() InvocationID {
	id, err := c.ID()
	if err != nil {
		panic(err)
	}
	return id
}

// Record identifies one written data unit. Records are compared by value:
// writing the same type and content twice yields equal records.
type Record struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Hash returns a stable digest of the record, used as a journal key.
func (r Record) Hash() string {
	canonical, err := MarshalCanonical(Object{
		"type":    String(r.Type),
		"content": String(r.Content),
	})
	if err != nil {
		// Two plain strings always marshal.
		panic(err)
	}
	return hashWithDomain(DomainRecord, canonical)
}

func (r Record) String() string {
	return r.Type + "/" + r.Content
}
