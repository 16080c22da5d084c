package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/wro/internal/reqctx"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// constituents and warnings always produce identical bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// warningRecord is the stored form of reqctx.Warning. Integer keys keep
// rows small and decouple the format from Go field names.
type warningRecord struct {
	Kind      string `cbor:"1,keyasint"`
	Processor string `cbor:"2,keyasint,omitempty"`
	Subject   string `cbor:"3,keyasint"`
	Message   string `cbor:"4,keyasint"`
}

func marshalConstituents(uris []string) ([]byte, error) {
	if uris == nil {
		uris = []string{}
	}
	data, err := encMode.Marshal(uris)
	if err != nil {
		return nil, fmt.Errorf("marshal constituents: %w", err)
	}
	return data, nil
}

func unmarshalConstituents(data []byte) ([]string, error) {
	var uris []string
	if err := decMode.Unmarshal(data, &uris); err != nil {
		return nil, fmt.Errorf("unmarshal constituents: %w", err)
	}
	return uris, nil
}

func marshalWarnings(warnings []reqctx.Warning) ([]byte, error) {
	records := make([]warningRecord, len(warnings))
	for i, w := range warnings {
		records[i] = warningRecord{
			Kind:      string(w.Kind),
			Processor: w.Processor,
			Subject:   w.Subject,
			Message:   w.Message,
		}
	}
	data, err := encMode.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}
	return data, nil
}

func unmarshalWarnings(data []byte) ([]reqctx.Warning, error) {
	var records []warningRecord
	if err := decMode.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	warnings := make([]reqctx.Warning, len(records))
	for i, r := range records {
		warnings[i] = reqctx.Warning{
			Kind:      reqctx.WarningKind(r.Kind),
			Processor: r.Processor,
			Subject:   r.Subject,
			Message:   r.Message,
		}
	}
	return warnings, nil
}
