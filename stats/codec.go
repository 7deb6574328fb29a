package stats

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/deltapack/compress"
	"github.com/arloliu/deltapack/format"
)

// Marshal encodes snap in the given format and compresses the result.
func Marshal(snap *Snapshot, f format.StatsFormat, c format.CompressionType) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case format.StatsYAML:
		data, err = yaml.Marshal(snap)
	case format.StatsMsgpack:
		data, err = msgpack.Marshal(snap)
	default:
		return nil, fmt.Errorf("unsupported stats format: %s", f)
	}
	if err != nil {
		return nil, fmt.Errorf("encode stats %q: %w", snap.ID(), err)
	}

	codec, err := compress.GetCodec(c)
	if err != nil {
		return nil, err
	}

	return codec.Compress(data)
}

// Unmarshal reverses Marshal.
func Unmarshal(data []byte, f format.StatsFormat, c format.CompressionType) (*Snapshot, error) {
	codec, err := compress.GetCodec(c)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress stats: %w", err)
	}

	snap := &Snapshot{}
	switch f {
	case format.StatsYAML:
		err = yaml.Unmarshal(raw, snap)
	case format.StatsMsgpack:
		err = msgpack.Unmarshal(raw, snap)
	default:
		return nil, fmt.Errorf("unsupported stats format: %s", f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	return snap, nil
}
