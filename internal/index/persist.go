package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cratedig/liner/internal/hnsw"
	"github.com/cratedig/liner/internal/models"
)

var snapshotMagic = [4]byte{'L', 'N', 'R', 'X'}

const snapshotVersion uint16 = 1

const metricCosine byte = 0

type snapshotHeader struct {
	Magic   [4]byte
	Version uint16
	Metric  byte
	_       byte
	Dims    uint32
	Count   uint32
	BuiltAt int64
}

type snapshotMeta struct {
	Chunks []models.Chunk     `json:"chunks"`
	Trust  map[string]float64 `json:"trust"`
}

// Save writes the index snapshot to path, replacing any existing file
// atomically so a crash mid-write never leaves a torn snapshot behind.
func (h *Handle) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := h.writeSnapshot(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (h *Handle) writeSnapshot(w io.Writer) error {
	hdr := snapshotHeader{
		Magic:   snapshotMagic,
		Version: snapshotVersion,
		Metric:  metricCosine,
		Dims:    uint32(h.graph.Config().Dimensions),
		Count:   uint32(len(h.bySeq)),
		BuiltAt: h.builtAt.Unix(),
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}

	var graphBuf bytes.Buffer
	if err := h.graph.WriteGraph(&graphBuf); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(graphBuf.Len())); err != nil {
		return err
	}
	if _, err := w.Write(graphBuf.Bytes()); err != nil {
		return err
	}

	meta := snapshotMeta{Chunks: make([]models.Chunk, len(h.bySeq)), Trust: h.trust}
	for i, c := range h.bySeq {
		meta.Chunks[i] = *c
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(metaBytes))); err != nil {
		return err
	}
	_, err = w.Write(metaBytes)
	return err
}

// Load reads a snapshot written by Save. The construction config must match
// the snapshot's vector width.
func Load(path string, cfg hnsw.Config) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hdr snapshotHeader
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", models.ErrIndexCorrupt, err)
	}
	if hdr.Magic != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic", models.ErrIndexCorrupt)
	}
	if hdr.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", models.ErrIndexCorrupt, hdr.Version)
	}
	if hdr.Metric != metricCosine {
		return nil, fmt.Errorf("%w: unsupported metric %d", models.ErrIndexCorrupt, hdr.Metric)
	}
	if int(hdr.Dims) != cfg.Dimensions {
		return nil, fmt.Errorf("%w: snapshot has %d dimensions, config wants %d",
			models.ErrIndexCorrupt, hdr.Dims, cfg.Dimensions)
	}

	var graphLen uint64
	if err := binary.Read(f, binary.LittleEndian, &graphLen); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexCorrupt, err)
	}
	graph, err := hnsw.ReadGraph(io.LimitReader(f, int64(graphLen)), cfg)
	if err != nil {
		return nil, err
	}

	var metaLen uint64
	if err := binary.Read(f, binary.LittleEndian, &metaLen); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexCorrupt, err)
	}
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(f, metaBytes); err != nil {
		return nil, fmt.Errorf("%w: reading metadata: %v", models.ErrIndexCorrupt, err)
	}
	var meta snapshotMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %v", models.ErrIndexCorrupt, err)
	}
	if graph.Len() != len(meta.Chunks) || graph.Len() != int(hdr.Count) {
		return nil, fmt.Errorf("%w: graph has %d nodes, metadata has %d chunks, header says %d",
			models.ErrIndexCorrupt, graph.Len(), len(meta.Chunks), hdr.Count)
	}

	h := NewHandle(cfg, meta.Trust)
	h.graph = graph
	h.builtAt = time.Unix(hdr.BuiltAt, 0)
	h.bySeq = make([]*models.Chunk, len(meta.Chunks))
	for i := range meta.Chunks {
		c := meta.Chunks[i]
		c.Seq = uint32(i)
		if c.ID != graph.ID(uint32(i)) {
			return nil, fmt.Errorf("%w: chunk %d id mismatch", models.ErrIndexCorrupt, i)
		}
		h.bySeq[i] = &c
		h.byID[c.ID] = c.Seq
		h.absorbVocab(&c)
	}
	return h, nil
}
