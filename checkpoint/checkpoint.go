// Package checkpoint implements the atomic on-disk checkpoint and
// restoration engine described in spec.md §4.6 and §6, grounded
// byte-for-byte on
// original_source/crates/core/src/checkpoint.rs.
package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/platform-net/validator-core/errs"
)

// Magic and FormatVersion are the fixed header constants from spec.md §6.
var Magic = [8]byte{'P', 'L', 'A', 'T', 'C', 'H', 'K', 'P'}

const FormatVersion uint32 = 1

// Header is the fixed-size checkpoint header.
type Header struct {
	Magic       [8]byte
	Version     uint32
	CreatedAtMs int64
	Sequence    uint64
	BodySHA256  [32]byte
	BodySize    uint64
}

func (h Header) encode() []byte {
	buf := make([]byte, 8+4+8+8+32+8)
	copy(buf[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.CreatedAtMs))
	binary.LittleEndian.PutUint64(buf[20:28], h.Sequence)
	copy(buf[28:60], h.BodySHA256[:])
	binary.LittleEndian.PutUint64(buf[60:68], h.BodySize)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) != 68 {
		return Header{}, errors.Errorf("header must be 68 bytes, got %d", len(buf))
	}
	var h Header
	copy(h.Magic[:], buf[0:8])
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	h.CreatedAtMs = int64(binary.LittleEndian.Uint64(buf[12:20]))
	h.Sequence = binary.LittleEndian.Uint64(buf[20:28])
	copy(h.BodySHA256[:], buf[28:60])
	h.BodySize = binary.LittleEndian.Uint64(buf[60:68])
	return h, nil
}

// PendingEvaluationState mirrors spec.md §3's pending evaluation record.
type PendingEvaluationState struct {
	SubmissionID  string
	ChallengeID   string
	MinerHotkey   string
	SubmissionHash string
	Scores        map[string]float64
	CreatedAtMs   int64
	Finalizing    bool
}

// CompletedEvaluationState mirrors spec.md §3's completed evaluation record.
type CompletedEvaluationState struct {
	SubmissionID string
	ChallengeID  string
	FinalScore   float64
	Epoch        uint64
	CompletedAtMs int64
}

// WeightVoteEntry is a single (uid, weight) pair within a validator's vote.
type WeightVoteEntry struct {
	UID    uint32
	Weight float64
}

// WeightVoteState mirrors spec.md §3's weight vote state.
type WeightVoteState struct {
	Epoch        uint64
	Netuid       uint32
	Votes        map[string][]WeightVoteEntry // hotkey -> votes
	Finalized    bool
	FinalWeights map[string]float64           // present iff Finalized
}

// Body is the checkpoint payload.
type Body struct {
	Sequence             uint64
	Epoch                uint64
	Netuid               uint32
	PendingEvaluations   []PendingEvaluationState
	CompletedEvaluations []CompletedEvaluationState
	WeightVotes          *WeightVoteState
	ExternalBlockHeight   uint64
	Metadata             map[string]string
}

// Manager creates, loads, and prunes checkpoints under a single directory.
type Manager struct {
	dir             string
	maxCheckpoints  int

	currentSequence uint64
}

var sequencePattern = regexp.MustCompile(`^checkpoint_(\d{16})\.bin$`)

// NewManager scans dir for existing checkpoint files and seeds
// currentSequence with the largest sequence found, per spec.md §4.6
// "Latest scan".
func NewManager(dir string, maxCheckpoints int) (*Manager, error) {
	const op = "checkpoint.NewManager"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.E(op, errs.IO, err)
	}
	m := &Manager{dir: dir, maxCheckpoints: maxCheckpoints}

	seq, err := findLatestSequence(dir)
	if err != nil {
		return nil, errs.E(op, errs.IO, err)
	}
	m.currentSequence = seq
	return m, nil
}

func findLatestSequence(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var max uint64
	for _, e := range entries {
		m := sequencePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		if seq > max {
			max = seq
		}
	}
	return max, nil
}

func checkpointFilename(seq uint64) string {
	return fmt.Sprintf("checkpoint_%016d.bin", seq)
}

func serializeBody(b Body) ([]byte, error) {
	return marshalBody(b)
}

// CreateCheckpoint serializes body, computes its SHA-256, writes a
// header-length-prefixed header then body to a temp file, fsyncs, and
// atomically renames into place, then prunes checkpoints beyond
// maxCheckpoints, per spec.md §4.6 "Create".
func (m *Manager) CreateCheckpoint(body Body) (uint64, error) {
	const op = "checkpoint.CreateCheckpoint"

	bodyBytes, err := serializeBody(body)
	if err != nil {
		return 0, errs.E(op, errs.Serialization, err)
	}
	bodyHash := sha256.Sum256(bodyBytes)

	seq := m.currentSequence + 1
	header := Header{
		Magic:       Magic,
		Version:     FormatVersion,
		CreatedAtMs: time.Now().UTC().UnixMilli(),
		Sequence:    seq,
		BodySHA256:  bodyHash,
		BodySize:    uint64(len(bodyBytes)),
	}
	headerBytes := header.encode()

	var hl [4]byte
	binary.LittleEndian.PutUint32(hl[:], uint32(len(headerBytes)))

	finalPath := filepath.Join(m.dir, checkpointFilename(seq))
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errs.E(op, errs.IO, err)
	}
	if _, err := f.Write(hl[:]); err != nil {
		f.Close()
		return 0, errs.E(op, errs.IO, err)
	}
	if _, err := f.Write(headerBytes); err != nil {
		f.Close()
		return 0, errs.E(op, errs.IO, err)
	}
	if _, err := f.Write(bodyBytes); err != nil {
		f.Close()
		return 0, errs.E(op, errs.IO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, errs.E(op, errs.IO, err)
	}
	if err := f.Close(); err != nil {
		return 0, errs.E(op, errs.IO, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, errs.E(op, errs.IO, err)
	}

	m.currentSequence = seq
	if err := m.cleanupOldCheckpoints(); err != nil {
		return seq, errs.E(op, errs.IO, err)
	}
	return seq, nil
}

func (m *Manager) cleanupOldCheckpoints() error {
	if m.maxCheckpoints <= 0 {
		return nil
	}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return err
	}
	var seqs []uint64
	for _, e := range entries {
		match := sequencePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		seq, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] }) // newest first

	if len(seqs) <= m.maxCheckpoints {
		return nil
	}
	for _, seq := range seqs[m.maxCheckpoints:] {
		if err := os.Remove(filepath.Join(m.dir, checkpointFilename(seq))); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// LoadCheckpoint reads the 4-byte header length, header, then body from
// the checkpoint with the given sequence, verifying magic and body hash,
// per spec.md §4.6 "Load".
func (m *Manager) LoadCheckpoint(seq uint64) (Header, Body, error) {
	const op = "checkpoint.LoadCheckpoint"
	path := filepath.Join(m.dir, checkpointFilename(seq))
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, Body{}, errs.E(op, errs.IO, err)
	}
	if len(data) < 4 {
		return Header{}, Body{}, errs.E(op, errs.Serialization, errors.New("truncated checkpoint file"))
	}
	hl := binary.LittleEndian.Uint32(data[:4])
	if len(data) < int(4+hl) {
		return Header{}, Body{}, errs.E(op, errs.Serialization, errors.New("truncated header"))
	}
	header, err := decodeHeader(data[4 : 4+hl])
	if err != nil {
		return Header{}, Body{}, errs.E(op, errs.Serialization, err)
	}
	if header.Magic != Magic {
		return Header{}, Body{}, errs.E(op, errs.Serialization, errors.New("bad magic"))
	}
	if header.Version > FormatVersion {
		return Header{}, Body{}, errs.E(op, errs.Serialization, errors.Errorf("checkpoint format version %d newer than supported %d", header.Version, FormatVersion))
	}

	bodyBytes := data[4+hl:]
	actualHash := sha256.Sum256(bodyBytes)
	if actualHash != header.BodySHA256 {
		return Header{}, Body{}, errs.E(op, errs.Serialization, errors.New("body hash mismatch"))
	}

	body, err := unmarshalBody(bodyBytes)
	if err != nil {
		return Header{}, Body{}, errs.E(op, errs.Serialization, err)
	}
	return header, body, nil
}

// LoadLatest loads the checkpoint at currentSequence.
func (m *Manager) LoadLatest() (Header, Body, error) {
	if m.currentSequence == 0 {
		return Header{}, Body{}, errs.E("checkpoint.LoadLatest", errs.NotFound, errors.New("no checkpoints exist"))
	}
	return m.LoadCheckpoint(m.currentSequence)
}

// ListCheckpoints returns every checkpoint sequence present on disk, ascending.
func (m *Manager) ListCheckpoints() ([]uint64, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var seqs []uint64
	for _, e := range entries {
		match := sequencePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		seq, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// CurrentSequence returns the manager's current sequence number.
func (m *Manager) CurrentSequence() uint64 { return m.currentSequence }
