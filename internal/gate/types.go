// Package gate implements the commitment boundary (C4): the policy
// pipeline that turns a CommitmentProposal into an auditable Decision.
package gate

import (
	"github.com/google/uuid"

	"github.com/worldline-vcs/wll/internal/crypto"
)

// CommitmentId is a time-sortable 128-bit proposal identifier. UUID v7's
// layout (48-bit millisecond timestamp followed by random bits) matches
// §3's requirement exactly, so it is used directly rather than hand-rolled.
type CommitmentId = uuid.UUID

// NewCommitmentId mints a fresh time-sortable commitment identifier.
func NewCommitmentId() (CommitmentId, error) {
	return uuid.NewV7()
}

// CommitmentClass tags the risk class of a proposal.
type CommitmentClass struct {
	kind  classKind
	label string // only set when kind == classCustom
}

type classKind uint8

const (
	ClassReadOnly classKind = iota
	ClassContentUpdate
	ClassStructuralChange
	ClassPolicyChange
	ClassIdentityOperation
	classCustom
)

func ReadOnly() CommitmentClass          { return CommitmentClass{kind: ClassReadOnly} }
func ContentUpdate() CommitmentClass     { return CommitmentClass{kind: ClassContentUpdate} }
func StructuralChange() CommitmentClass  { return CommitmentClass{kind: ClassStructuralChange} }
func PolicyChange() CommitmentClass      { return CommitmentClass{kind: ClassPolicyChange} }
func IdentityOperation() CommitmentClass { return CommitmentClass{kind: ClassIdentityOperation} }
func Custom(label string) CommitmentClass {
	return CommitmentClass{kind: classCustom, label: label}
}

// Risk returns the class's risk score per §3 (Custom is medium risk, 2).
func (c CommitmentClass) Risk() int {
	switch c.kind {
	case ClassReadOnly:
		return 0
	case ClassContentUpdate:
		return 1
	case ClassStructuralChange:
		return 2
	case ClassPolicyChange:
		return 3
	case ClassIdentityOperation:
		return 4
	case classCustom:
		return 2
	default:
		return 1
	}
}

func (c CommitmentClass) String() string {
	switch c.kind {
	case ClassReadOnly:
		return "ReadOnly"
	case ClassContentUpdate:
		return "ContentUpdate"
	case ClassStructuralChange:
		return "StructuralChange"
	case ClassPolicyChange:
		return "PolicyChange"
	case ClassIdentityOperation:
		return "IdentityOperation"
	case classCustom:
		return "Custom(" + c.label + ")"
	default:
		return "Unknown"
	}
}

// Equal compares classes, including custom labels.
func (c CommitmentClass) Equal(other CommitmentClass) bool {
	return c.kind == other.kind && c.label == other.label
}

// Tag returns a stable small integer for the class kind (0-4, or 5 for
// Custom), for use by canonical serializers that need a byte-sized tag
// rather than the full String() form.
func (c CommitmentClass) Tag() byte {
	if c.kind == classCustom {
		return 5
	}
	return byte(c.kind)
}

// Label returns the custom label, or "" for non-Custom classes.
func (c CommitmentClass) Label() string { return c.label }

// ClassFromTag is the inverse of Tag: reconstructs a CommitmentClass from
// its serialized tag and (for Custom) label.
func ClassFromTag(tag byte, label string) CommitmentClass {
	switch tag {
	case 0:
		return ReadOnly()
	case 1:
		return ContentUpdate()
	case 2:
		return StructuralChange()
	case 3:
		return PolicyChange()
	case 4:
		return IdentityOperation()
	default:
		return Custom(label)
	}
}

// EvidenceBundle is an ordered list of evidence URIs plus the BLAKE3 digest
// of their canonical concatenation, per §3.
type EvidenceBundle struct {
	URIs   []string
	Digest crypto.ObjectId
}

// NewEvidenceBundle computes Digest = BLAKE3("EVIDENCE:" ‖ uri1 ‖ 0x00 ‖ uri2 ‖ 0x00 ‖ ...).
func NewEvidenceBundle(uris []string) EvidenceBundle {
	var buf []byte
	for i, u := range uris {
		if i > 0 {
			buf = append(buf, 0x00)
		}
		buf = append(buf, []byte(u)...)
	}
	return EvidenceBundle{URIs: uris, Digest: crypto.HashWithDomain(crypto.DomainEvidence, buf)}
}

// Empty reports whether the bundle carries no evidence.
func (e EvidenceBundle) Empty() bool { return len(e.URIs) == 0 }

// Proposal is the input to the gate (CommitmentProposal in §3).
type Proposal struct {
	Message                string
	Intent                  string // defaults to Message when empty
	Class                   CommitmentClass
	Evidence                EvidenceBundle
	Tree                    *crypto.ObjectId
	Author                  crypto.ObjectId // WorldlineId
	CommitmentID            CommitmentId
	CapabilityToken         string   // JWT, consumed by CapabilityCheck
	RequestedCapabilities   []string // scopes required by CapabilityCheck
}

// EffectiveIntent returns Intent, defaulting to Message when Intent is empty.
func (p *Proposal) EffectiveIntent() string {
	if p.Intent != "" {
		return p.Intent
	}
	return p.Message
}

// Decision is the gate's verdict on a proposal.
type Decision struct {
	Accepted   bool
	PolicyHash crypto.ObjectId
	Reasons    []string // populated only when !Accepted
}
