package hnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/cratedig/liner/internal/models"
)

// WriteGraph serializes the graph structure. The caller owns any framing or
// header around this payload.
func (g *Graph) WriteGraph(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(g.vectors))); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, int32(g.entry)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(g.maxLevel)); err != nil {
		return err
	}

	for seq := range g.vectors {
		if err := writeString(bw, g.ids[seq]); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(g.levels[seq])); err != nil {
			return err
		}
		for _, v := range g.vectors[seq] {
			if err := binary.Write(bw, binary.LittleEndian, math.Float32bits(v)); err != nil {
				return err
			}
		}
		for layer := 0; layer <= g.levels[seq]; layer++ {
			neighbors := g.links[seq][layer]
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(neighbors))); err != nil {
				return err
			}
			for _, n := range neighbors {
				if err := binary.Write(bw, binary.LittleEndian, n); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// ReadGraph deserializes a graph written by WriteGraph. The config must match
// the one the graph was built with; a vector width disagreement is reported
// as corruption.
func ReadGraph(r io.Reader, cfg Config) (*Graph, error) {
	br := bufio.NewReader(r)
	g := New(cfg)

	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexCorrupt, err)
	}
	var entry int32
	if err := binary.Read(br, binary.LittleEndian, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexCorrupt, err)
	}
	var maxLevel uint32
	if err := binary.Read(br, binary.LittleEndian, &maxLevel); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexCorrupt, err)
	}
	if entry >= int32(count) {
		return nil, fmt.Errorf("%w: entry point %d out of range", models.ErrIndexCorrupt, entry)
	}
	g.entry = entry
	g.maxLevel = int(maxLevel)

	g.vectors = make([][]float32, count)
	g.ids = make([]string, count)
	g.levels = make([]int, count)
	g.links = make([][][]uint32, count)

	for seq := uint32(0); seq < count; seq++ {
		id, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d id: %v", models.ErrIndexCorrupt, seq, err)
		}
		g.ids[seq] = id

		var level uint32
		if err := binary.Read(br, binary.LittleEndian, &level); err != nil {
			return nil, fmt.Errorf("%w: node %d level: %v", models.ErrIndexCorrupt, seq, err)
		}
		g.levels[seq] = int(level)

		vec := make([]float32, cfg.Dimensions)
		for i := range vec {
			var bits uint32
			if err := binary.Read(br, binary.LittleEndian, &bits); err != nil {
				return nil, fmt.Errorf("%w: node %d vector: %v", models.ErrIndexCorrupt, seq, err)
			}
			vec[i] = math.Float32frombits(bits)
		}
		g.vectors[seq] = vec

		layers := make([][]uint32, level+1)
		for layer := range layers {
			var n uint32
			if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
				return nil, fmt.Errorf("%w: node %d links: %v", models.ErrIndexCorrupt, seq, err)
			}
			if n > count {
				return nil, fmt.Errorf("%w: node %d has %d neighbors in a %d-node graph", models.ErrIndexCorrupt, seq, n, count)
			}
			neighbors := make([]uint32, n)
			for i := range neighbors {
				if err := binary.Read(br, binary.LittleEndian, &neighbors[i]); err != nil {
					return nil, fmt.Errorf("%w: node %d links: %v", models.ErrIndexCorrupt, seq, err)
				}
				if neighbors[i] >= count {
					return nil, fmt.Errorf("%w: node %d links to missing node %d", models.ErrIndexCorrupt, seq, neighbors[i])
				}
			}
			layers[layer] = neighbors
		}
		g.links[seq] = layers
	}
	return g, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
