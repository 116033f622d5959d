package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventFormatter(t *testing.T) {
	f := NewEventFormatter(DefaultNamespace)

	for in, want := range map[string]string{
		".join":          "join",
		`\App\Custom`:    `App\Custom`,
		".client-typing": "client-typing",
		"OrderShipped":   `App\Events\OrderShipped`,
		"Orders.Shipped": `App\Events\Orders\Shipped`,
	} {
		assert.Equal(t, want, f.Format(in), in)
	}

	assert.Equal(t, `Orders\Shipped`, NewEventFormatter("").Format("Orders.Shipped"))
}
