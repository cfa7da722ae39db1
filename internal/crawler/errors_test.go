package crawler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchErrorMessages(t *testing.T) {
	t.Parallel()

	cause := errors.New("timeout")
	assert.Equal(t, "fetch https://x/: status 503", (&FetchError{Target: "https://x/", StatusCode: 503}).Error())
	assert.Equal(t, "fetch https://x/: timeout", (&FetchError{Target: "https://x/", Err: cause}).Error())
	assert.Equal(t, "fetch https://x/: status 500: timeout",
		(&FetchError{Target: "https://x/", StatusCode: 500, Err: cause}).Error())
	assert.ErrorIs(t, &FetchError{Err: cause}, cause)
}

func TestExtractionErrorIdentifiesTargetAndField(t *testing.T) {
	t.Parallel()

	err := &ExtractionError{Target: "https://x/page/2/", Field: ".author"}
	assert.Equal(t, "extract https://x/page/2/: missing .author", err.Error())

	wrapped := fmt.Errorf("page 2: %w", err)
	assert.True(t, IsExtractionError(wrapped))
	assert.False(t, IsFetchError(wrapped))
}
