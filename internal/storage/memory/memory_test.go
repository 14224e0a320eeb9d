package memory

import (
	"testing"

	"poupanca/internal/storage"
	"poupanca/internal/storage/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) storage.Store { return New() })
}
