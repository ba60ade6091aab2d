package service

import (
	"testing"

	"aiko-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name string
		ev   *model.InboundEvent
		want model.ConversationKey
	}{
		{"explicit thread", &model.InboundEvent{GuildID: "g1", ChannelID: "c1", ThreadID: "t1"}, "g1_thread_t1"},
		{"explicit thread wins over thread channel", &model.InboundEvent{GuildID: "g1", ChannelID: "c1", ThreadID: "t1", ChannelIsThread: true}, "g1_thread_t1"},
		{"channel is thread", &model.InboundEvent{GuildID: "g1", ChannelID: "t2", ChannelIsThread: true}, "g1_thread_t2"},
		{"guild channel", &model.InboundEvent{GuildID: "g1", ChannelID: "c1"}, "g1_c1"},
		{"dm channel", &model.InboundEvent{ChannelID: "d1"}, "dm_d1"},
		{"dm thread", &model.InboundEvent{ThreadID: "t3"}, "dm_thread_t3"},
		{"nothing", &model.InboundEvent{GuildID: "g1"}, model.UnknownKey},
		{"nil", nil, model.UnknownKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveKey(tt.ev))
		})
	}
}

func TestResolveKey_Distinct(t *testing.T) {
	events := []*model.InboundEvent{
		{GuildID: "1", ChannelID: "2"},
		{GuildID: "1", ChannelID: "3"},
		{GuildID: "2", ChannelID: "2"},
		{GuildID: "1", ChannelID: "2", ChannelIsThread: true},
		{GuildID: "1", ThreadID: "3"},
		{ChannelID: "2"},
		{ChannelID: "2", ChannelIsThread: true},
	}
	seen := make(map[model.ConversationKey]int)
	for i, ev := range events {
		key := ResolveKey(ev)
		if prev, ok := seen[key]; ok {
			t.Fatalf("events %d and %d collide on key %q", prev, i, key)
		}
		seen[key] = i
	}
}

func TestResolveKey_Stable(t *testing.T) {
	ev := &model.InboundEvent{GuildID: "9", ChannelID: "8", ChannelIsThread: true, Content: "a"}
	other := &model.InboundEvent{GuildID: "9", ChannelID: "8", ChannelIsThread: true, Content: "b", AuthorID: "x"}
	assert.Equal(t, ResolveKey(ev), ResolveKey(other))
}

func TestThreadKey(t *testing.T) {
	assert.Equal(t, model.ConversationKey("5_thread_6"), ThreadKey("5", "6"))
	assert.Equal(t, model.ConversationKey("dm_thread_6"), ThreadKey("", "6"))
}
