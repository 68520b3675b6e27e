package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveBuildLabels(t *testing.T) {
	closing := testutil.ToFloat64(PromptBuilds.WithLabelValues("closing"))
	compact := testutil.ToFloat64(PromptBuilds.WithLabelValues("compact"))
	none := testutil.ToFloat64(PromptBuilds.WithLabelValues("none"))

	ObserveBuild("closing", false, 120)
	ObserveBuild("closing", true, 80)
	ObserveBuild("", false, 10)

	assert.Equal(t, closing+1, testutil.ToFloat64(PromptBuilds.WithLabelValues("closing")))
	assert.Equal(t, compact+1, testutil.ToFloat64(PromptBuilds.WithLabelValues("compact")))
	assert.Equal(t, none+1, testutil.ToFloat64(PromptBuilds.WithLabelValues("none")))
}

func TestObserveChatCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(ChatErrors.WithLabelValues("echo"))
	ObserveChat("echo", time.Now(), nil)
	ObserveChat("echo", time.Now(), errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(ChatErrors.WithLabelValues("echo")))
}
