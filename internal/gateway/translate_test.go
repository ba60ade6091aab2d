package gateway

import (
	"testing"

	"aiko-go/internal/model"
	"aiko-go/internal/service"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	user := &discordgo.User{ID: "1", Username: "mika_99", GlobalName: "Mika"}

	assert.Equal(t, "Mika-san", displayName(&discordgo.Member{Nick: "Mika-san"}, user))
	assert.Equal(t, "Mika", displayName(&discordgo.Member{}, user))
	assert.Equal(t, "mika_99", displayName(nil, &discordgo.User{Username: "mika_99"}))
	assert.Equal(t, "Mika", displayName(&discordgo.Member{User: user}, nil))
	assert.Equal(t, "", displayName(nil, nil))
}

func TestMessageEvent(t *testing.T) {
	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "t1",
		GuildID:   "g1",
		Content:   "<@42> hello there",
		Author:    &discordgo.User{ID: "u1", Username: "mika"},
		Member:    &discordgo.Member{Nick: "Mika"},
	}

	ev := messageEvent(m, true, "42")
	assert.Equal(t, "hello there", ev.Content)
	assert.Equal(t, "Mika", ev.AuthorDisplayName)
	assert.False(t, ev.FromBot)
	assert.Equal(t, model.ConversationKey("g1_thread_t1"), service.ResolveKey(ev))

	// 开启了子区的消息使用子区键
	m.Thread = &discordgo.Channel{ID: "t9"}
	assert.Equal(t, model.ConversationKey("g1_thread_t9"), service.ResolveKey(messageEvent(m, false, "42")))

	dm := &discordgo.Message{ID: "m2", ChannelID: "d1", Content: "hi", Author: &discordgo.User{ID: "u1", Bot: true}}
	ev = messageEvent(dm, false, "42")
	assert.True(t, ev.FromBot)
	assert.Equal(t, model.ConversationKey("dm_d1"), service.ResolveKey(ev))
}

func TestInteractionEvent(t *testing.T) {
	guild := &discordgo.Interaction{
		ID:        "i1",
		ChannelID: "t1",
		GuildID:   "g1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "mika"}},
	}
	ev := interactionEvent(guild, true)
	assert.Equal(t, "u1", ev.AuthorID)
	assert.Equal(t, "mika", ev.AuthorDisplayName)
	assert.Equal(t, model.ConversationKey("g1_thread_t1"), service.ResolveKey(ev))

	dm := &discordgo.Interaction{ID: "i2", ChannelID: "d1", User: &discordgo.User{ID: "u2", GlobalName: "Rin"}}
	ev = interactionEvent(dm, false)
	assert.Equal(t, "u2", ev.AuthorID)
	assert.Equal(t, "Rin", ev.AuthorDisplayName)
	assert.True(t, ev.IsDM())
}
