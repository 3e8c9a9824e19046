package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/ioutil"
	"strings"
)

// tempSuffix is appended to the name of a persisted file's backup copy.
const tempSuffix = "_temp"

// ErrBadFilenameSuffix is returned when SaveJSON or LoadJSON is asked to
// operate directly on a file already carrying tempSuffix.
var ErrBadFilenameSuffix = errors.New("persist: filename must not end with the temp suffix")

// Metadata identifies the contents and version of a persisted file, so that
// LoadJSON can refuse to load a file that wasn't written by a compatible
// version of the code that's reading it.
type Metadata struct {
	Header  string
	Version string
}

// jsonEnvelope is the on-disk wrapper around a persisted value. Generation
// is used to decide, between the main file and its "_temp" backup, which one
// is stale and should be overwritten on the next save.
type jsonEnvelope struct {
	Header     string
	Version    string
	Generation uint64
	Checksum   string `json:",omitempty"`
	Data       json.RawMessage
}

func checksumOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func readEnvelope(path string) (*jsonEnvelope, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var env jsonEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if env.Checksum != "" && env.Checksum != checksumOf(env.Data) {
		return nil, errors.New("persist: checksum mismatch in " + path)
	}
	return &env, nil
}

// SaveJSON encodes object as JSON, stamps it with meta, and durably writes it
// to filename. SaveJSON maintains filename and filename+"_temp" as two
// alternating copies: each call overwrites whichever of the two is currently
// stale, so a crash mid-write can corrupt at most one of the pair.
func SaveJSON(meta Metadata, object interface{}, filename string) error {
	if strings.HasSuffix(filename, tempSuffix) {
		return ErrBadFilenameSuffix
	}
	data, err := json.Marshal(object)
	if err != nil {
		return err
	}

	tempFilename := filename + tempSuffix
	mainEnv, mainErr := readEnvelope(filename)
	tempEnv, tempErr := readEnvelope(tempFilename)

	var target string
	var generation uint64
	switch {
	case mainErr != nil:
		target = filename
		if tempErr == nil {
			generation = tempEnv.Generation + 1
		}
	case tempErr != nil:
		target = tempFilename
		generation = mainEnv.Generation + 1
	case mainEnv.Generation <= tempEnv.Generation:
		target = filename
		generation = tempEnv.Generation + 1
	default:
		target = tempFilename
		generation = mainEnv.Generation + 1
	}

	env := jsonEnvelope{
		Header:     meta.Header,
		Version:    meta.Version,
		Generation: generation,
		Checksum:   checksumOf(data),
		Data:       data,
	}
	// Plain Marshal keeps Data byte-for-byte as checksummed; MarshalIndent
	// would re-indent the raw message and break the checksum on load.
	out, err := json.Marshal(env)
	if err != nil {
		return err
	}

	sf, err := NewSafeFile(target)
	if err != nil {
		return err
	}
	if _, err := sf.Write(out); err != nil {
		sf.Close()
		return err
	}
	return sf.Commit()
}

// LoadJSON reads filename, falling back to its "_temp" backup if the main
// copy is missing or fails its checksum, and decodes the stored value into
// object. An error is returned if neither copy is readable, or if the
// persisted Metadata does not match meta.
func LoadJSON(meta Metadata, object interface{}, filename string) error {
	if strings.HasSuffix(filename, tempSuffix) {
		return ErrBadFilenameSuffix
	}
	env, err := readEnvelope(filename)
	if err != nil {
		env, err = readEnvelope(filename + tempSuffix)
		if err != nil {
			return errors.New("persist: unable to load " + filename + ": " + err.Error())
		}
	}
	if env.Header != meta.Header || env.Version != meta.Version {
		return errors.New("persist: metadata mismatch in " + filename)
	}
	return json.Unmarshal(env.Data, object)
}
