package servicedesk

import (
	"context"
	"log"
	"net/http"
	"net/url"
)

// ResolveCaller looks up the service desk user for a requester email,
// falling back to the configured default caller when the lookup finds
// nothing or fails. Results are cached per process. Never returns an error:
// a ticket with the fallback caller beats no ticket.
func (c *Client) ResolveCaller(ctx context.Context, email string) UserRef {
	if email == "" {
		return UserRef{ID: c.fallbacks.CallerID}
	}
	c.mu.Lock()
	if cached, ok := c.userCache[email]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	user, err := c.lookupUser(ctx, email)
	if err != nil {
		log.Printf("servicedesk: caller lookup %s: %v (using fallback)", email, err)
		return UserRef{ID: c.fallbacks.CallerID, Email: email}
	}
	if user == nil {
		return UserRef{ID: c.fallbacks.CallerID, Email: email}
	}

	c.mu.Lock()
	c.userCache[email] = *user
	c.mu.Unlock()
	return *user
}

// ResolveAssignment maps a classifier category to an assignment group and
// picks a member of that group, rotating through members so tickets spread
// across the team. Both legs fall back: unknown category or empty group
// resolves to the configured default group with no assignee.
func (c *Client) ResolveAssignment(ctx context.Context, category string) (GroupRef, UserRef) {
	groupName := c.categoryGroups[category]
	if groupName == "" {
		groupName = c.fallbacks.GroupName
	}
	if groupName == "" {
		return GroupRef{ID: c.fallbacks.GroupID}, UserRef{}
	}

	group := c.resolveGroup(ctx, groupName)
	if group.ID == "" {
		return GroupRef{ID: c.fallbacks.GroupID, Name: c.fallbacks.GroupName}, UserRef{}
	}

	members := c.groupMembers(ctx, group.ID)
	if len(members) == 0 {
		return group, UserRef{}
	}

	c.mu.Lock()
	member := members[c.pick%len(members)]
	c.pick++
	c.mu.Unlock()
	return group, member
}

func (c *Client) resolveGroup(ctx context.Context, name string) GroupRef {
	c.mu.Lock()
	if cached, ok := c.groupCache[name]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	q := url.Values{}
	q.Set("sysparm_query", "name="+name)
	q.Set("sysparm_limit", "1")
	q.Set("sysparm_fields", "sys_id,name")

	var out struct {
		Result []struct {
			SysID string `json:"sys_id"`
			Name  string `json:"name"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "sys_user_group", q, nil, &out); err != nil {
		log.Printf("servicedesk: group lookup %q: %v", name, err)
		return GroupRef{}
	}
	if len(out.Result) == 0 {
		return GroupRef{}
	}
	group := GroupRef{ID: out.Result[0].SysID, Name: out.Result[0].Name}

	c.mu.Lock()
	c.groupCache[name] = group
	c.mu.Unlock()
	return group
}

func (c *Client) groupMembers(ctx context.Context, groupID string) []UserRef {
	c.mu.Lock()
	if cached, ok := c.memberCache[groupID]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	q := url.Values{}
	q.Set("sysparm_query", "group="+groupID)
	q.Set("sysparm_fields", "user.sys_id,user.name,user.email")
	q.Set("sysparm_limit", "50")

	var out struct {
		Result []struct {
			SysID string `json:"user.sys_id"`
			Name  string `json:"user.name"`
			Email string `json:"user.email"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "sys_user_grmember", q, nil, &out); err != nil {
		log.Printf("servicedesk: group members %s: %v", groupID, err)
		return nil
	}
	members := make([]UserRef, 0, len(out.Result))
	for _, m := range out.Result {
		if m.SysID != "" {
			members = append(members, UserRef{ID: m.SysID, Name: m.Name, Email: m.Email})
		}
	}

	c.mu.Lock()
	c.memberCache[groupID] = members
	c.mu.Unlock()
	return members
}

func (c *Client) lookupUser(ctx context.Context, email string) (*UserRef, error) {
	q := url.Values{}
	q.Set("sysparm_query", "email="+email)
	q.Set("sysparm_limit", "1")
	q.Set("sysparm_fields", "sys_id,name,email")

	var out struct {
		Result []struct {
			SysID string `json:"sys_id"`
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "sys_user", q, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Result) == 0 {
		return nil, nil
	}
	return &UserRef{ID: out.Result[0].SysID, Name: out.Result[0].Name, Email: out.Result[0].Email}, nil
}
