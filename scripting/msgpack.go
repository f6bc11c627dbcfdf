package scripting

import "github.com/vmihailenco/msgpack/v5"

func msgpackMarshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func msgpackUnmarshal(b []byte, v interface{}) error {
	return msgpack.Unmarshal(b, v)
}
