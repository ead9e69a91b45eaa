package store

import (
	"database/sql/driver"
	"fmt"

	sqlite "modernc.org/sqlite"
)

func init() {
	// The pure-Go driver cannot load sqlite-vec; register a compatible
	// vec_distance_cosine so the same SQL runs on both drivers.
	_ = sqlite.RegisterDeterministicScalarFunction("vec_distance_cosine", 2, vecDistanceCosine)
}

func vecDistanceCosine(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_distance_cosine expects 2 arguments")
	}
	a, err := blobArg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := blobArg(args[1])
	if err != nil {
		return nil, err
	}
	d, err := cosineDistance(a, b)
	if err != nil {
		return nil, fmt.Errorf("vec_distance_cosine: %w", err)
	}
	return d, nil
}

func blobArg(v driver.Value) ([]float32, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return decodeVector(x)
	case string:
		return decodeVector([]byte(x))
	default:
		return nil, fmt.Errorf("vec_distance_cosine: unsupported argument type %T", v)
	}
}
