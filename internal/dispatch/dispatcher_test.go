package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yoockh/interviewstream/internal/models"
)

func result(typ string) models.AnalysisResult {
	return models.AnalysisResult{Kind: models.KindUnknown, Type: typ, Raw: map[string]any{"type": typ}}
}

func TestPublish_AllSubscribersInOrderDespitePanic(t *testing.T) {
	d := NewDispatcher(nil)

	var calls []int
	d.Subscribe(func(models.AnalysisResult) { calls = append(calls, 1) })
	d.Subscribe(func(models.AnalysisResult) {
		calls = append(calls, 2)
		panic("subscriber 2 failed")
	})
	d.Subscribe(func(models.AnalysisResult) { calls = append(calls, 3) })

	assert.NotPanics(t, func() { d.Publish(result("video_analysis")) })
	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestPublish_SameResultToEverySubscriber(t *testing.T) {
	d := NewDispatcher(nil)
	in := result("screen_analysis")

	var got []models.AnalysisResult
	for i := 0; i < 4; i++ {
		d.Subscribe(func(r models.AnalysisResult) { got = append(got, r) })
	}
	d.Publish(in)

	assert.Len(t, got, 4)
	for _, r := range got {
		assert.Equal(t, in, r)
	}
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher(nil)

	var a, b int
	unsubA := d.Subscribe(func(models.AnalysisResult) { a++ })
	d.Subscribe(func(models.AnalysisResult) { b++ })

	d.Publish(result("status"))
	unsubA()
	unsubA()
	d.Publish(result("status"))

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, d.Len())
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	d := NewDispatcher(nil)

	var second int
	var unsub func()
	unsub = d.Subscribe(func(models.AnalysisResult) { unsub() })
	d.Subscribe(func(models.AnalysisResult) { second++ })

	d.Publish(result("status"))
	d.Publish(result("status"))

	assert.Equal(t, 2, second)
	assert.Equal(t, 1, d.Len())
}

func TestClear(t *testing.T) {
	d := NewDispatcher(nil)
	var n int
	d.Subscribe(func(models.AnalysisResult) { n++ })
	d.Clear()
	d.Publish(result("status"))
	assert.Zero(t, n)
	assert.Zero(t, d.Len())
}
