package proxy

import "sync"

var relayBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, relayBufferSize)
		return &b
	},
}

func getBuffer() *[]byte {
	return relayBuffers.Get().(*[]byte)
}

func putBuffer(b *[]byte) {
	relayBuffers.Put(b)
}
