package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExamEndTime(t *testing.T) {
	start := time.Date(2024, 12, 10, 8, 30, 0, 0, time.UTC)
	e := Exam{StartTime: start}
	assert.Equal(t, start.Add(120*time.Minute), e.EndTime(120))

	e.DurationMin = IntPtr(150)
	assert.Equal(t, start.Add(150*time.Minute), e.EndTime(120))
}

func TestExamLocation(t *testing.T) {
	assert.Equal(t, "", Exam{}.Location())
	assert.Equal(t, "SWNG", Exam{Building: StringPtr("SWNG")}.Location())
	assert.Equal(t, "121", Exam{Room: StringPtr(" 121 ")}.Location())
	assert.Equal(t, "SWNG 121", Exam{Building: StringPtr("SWNG"), Room: StringPtr("121")}.Location())
}

func TestCloneItemsDoesNotAlias(t *testing.T) {
	items := []ScheduleItem{{Exam: Exam{ID: 1, Room: StringPtr("100")}}}
	cp := CloneItems(items)
	*cp[0].Room = "200"
	cp[0].ID = 9

	assert.Equal(t, "100", *items[0].Room)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Nil(t, CloneItems(nil))
}
