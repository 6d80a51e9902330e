package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductRecord_EmptyAndValid(t *testing.T) {
	tests := []struct {
		name      string
		record    ProductRecord
		wantEmpty bool
		wantValid bool
	}{
		{"nothing", ProductRecord{}, true, false},
		{"blank title only", ProductRecord{Title: StrPtr("   ")}, true, false},
		{"title only", ProductRecord{Title: StrPtr("Mouse")}, false, false},
		{"price only", ProductRecord{Price: FloatPtr(9.99)}, false, false},
		{"zero price", ProductRecord{Title: StrPtr("Mouse"), Price: FloatPtr(0)}, false, false},
		{"title and price", ProductRecord{Title: StrPtr("Mouse"), Price: FloatPtr(19.99)}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEmpty, tt.record.Empty())
			assert.Equal(t, tt.wantValid, tt.record.Valid())
		})
	}
}

func TestProductRecord_Item(t *testing.T) {
	r := ProductRecord{
		SourceURL: "https://www.amazon.com/dp/B000000001",
		Title:     StrPtr("Mouse"),
		Price:     FloatPtr(19.99),
		Currency:  "USD",
		ImageURL:  StrPtr("https://m.media-amazon.com/images/I/a.jpg"),
		Rating:    FloatPtr(4.5),
	}

	item := r.Item()

	assert.Equal(t, r.SourceURL, item.Link)
	assert.Equal(t, r.Title, item.Title)
	assert.Equal(t, r.Price, item.ActualPrice)
	assert.Equal(t, r.ImageURL, item.PhotoURL)
	assert.Equal(t, "USD", item.Currency)
}

func TestOutcomes(t *testing.T) {
	ok := Success("u", ProductRecord{SourceURL: "u"}, 2, []FailureReason{ReasonTransportError})
	assert.True(t, ok.OK())
	assert.Empty(t, ok.Reason)
	assert.Equal(t, 2, ok.Attempts)

	failed := Failure("u", ReasonSoftBlockDetected, errors.New("captcha"), 3, nil)
	assert.False(t, failed.OK())
	assert.Nil(t, failed.Record)
	assert.Equal(t, "captcha", failed.Error)

	assert.Empty(t, Failure("u", ReasonInvalidInputURL, nil, 0, nil).Error)
}

func TestBatchStats_Merge(t *testing.T) {
	a := BatchStats{SuccessCount: 2, FailureCount: 1, Failures: map[FailureReason]int{ReasonTransportError: 1}}
	b := BatchStats{SuccessCount: 1, FailureCount: 2, Failures: map[FailureReason]int{
		ReasonTransportError:    1,
		ReasonSoftBlockDetected: 1,
	}}

	m := a.Merge(b)

	assert.Equal(t, 3, m.SuccessCount)
	assert.Equal(t, 3, m.FailureCount)
	assert.Equal(t, 6, m.Total())
	assert.Equal(t, 2, m.Failures[ReasonTransportError])
	assert.Equal(t, 1, m.Failures[ReasonSoftBlockDetected])
	assert.Equal(t, 1, a.Failures[ReasonTransportError], "inputs are not mutated")

	assert.Equal(t, m, BatchStats{}.Merge(m))
}

func TestSearchOrigin(t *testing.T) {
	assert.Equal(t, "search:usb hub", SearchOrigin("usb hub"))
	item := NewWorkItem("https://www.amazon.com/dp/B000000001", OriginSeed)
	assert.Equal(t, OriginSeed, item.Origin)
	assert.False(t, item.CreatedAt.IsZero())
}
