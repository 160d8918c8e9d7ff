package service

import (
	"context"
	"time"

	"firebase.google.com/go/v4/auth"
)

// WithdrawnNickname is shown when a member can no longer be resolved
// (account deleted, lookup failed). Display lookups degrade to it instead of
// failing the surrounding operation.
const WithdrawnNickname = "withdrawn member"

type MemberDisplay struct {
	UID       string
	Nickname  string
	Email     string
	AvatarURL *string
}

// MemberDirectory resolves member display fields. The second return of
// Display reports whether the member actually exists; DisplayAll always
// returns an entry per uid, substituting the withdrawn fallback.
type MemberDirectory interface {
	Display(ctx context.Context, uid string) (MemberDisplay, bool)
	DisplayAll(ctx context.Context, uids []string) map[string]MemberDisplay
}

const directoryTimeout = 5 * time.Second

type firebaseMemberDirectory struct {
	client        *auth.Client
	defaultAvatar string
}

func NewMemberDirectory(client *auth.Client, defaultAvatar string) MemberDirectory {
	return &firebaseMemberDirectory{client: client, defaultAvatar: defaultAvatar}
}

func (d *firebaseMemberDirectory) fallback(uid string) MemberDisplay {
	avatar := d.defaultAvatar
	return MemberDisplay{UID: uid, Nickname: WithdrawnNickname, AvatarURL: &avatar}
}

func (d *firebaseMemberDirectory) fromRecord(u *auth.UserRecord) MemberDisplay {
	md := MemberDisplay{UID: u.UID, Nickname: u.DisplayName, Email: u.Email}
	if md.Nickname == "" {
		md.Nickname = WithdrawnNickname
	}
	if u.PhotoURL != "" {
		photo := u.PhotoURL
		md.AvatarURL = &photo
	} else if d.defaultAvatar != "" {
		avatar := d.defaultAvatar
		md.AvatarURL = &avatar
	}
	return md
}

func (d *firebaseMemberDirectory) Display(ctx context.Context, uid string) (MemberDisplay, bool) {
	ctx, cancel := context.WithTimeout(ctx, directoryTimeout)
	defer cancel()
	u, err := d.client.GetUser(ctx, uid)
	if err != nil {
		return d.fallback(uid), false
	}
	return d.fromRecord(u), true
}

func (d *firebaseMemberDirectory) DisplayAll(ctx context.Context, uids []string) map[string]MemberDisplay {
	out := make(map[string]MemberDisplay, len(uids))
	if len(uids) == 0 {
		return out
	}
	idents := make([]auth.UserIdentifier, 0, len(uids))
	seen := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out[uid] = d.fallback(uid)
		idents = append(idents, auth.UIDIdentifier{UID: uid})
	}
	if len(idents) == 0 {
		return out
	}
	ctx, cancel := context.WithTimeout(ctx, directoryTimeout)
	defer cancel()
	res, err := d.client.GetUsers(ctx, idents)
	if err != nil {
		return out
	}
	for _, u := range res.Users {
		out[u.UID] = d.fromRecord(u)
	}
	return out
}
