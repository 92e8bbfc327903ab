package blog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/conduit-lang/japi/internal/web/auth"
	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/request"
	"github.com/conduit-lang/japi/pkg/japi/schema"
)

// AdminRole may change every resource.
const AdminRole = "admin"

// User is an account which writes posts and comments.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Post is an article written by a user.
type Post struct {
	ID        string
	Title     string
	Body      string
	AuthorID  string
	CreatedAt time.Time

	// owner is the stored author, which the author relationship may be
	// about to replace.
	owner string
}

// Comment is a reply to a post.
type Comment struct {
	ID        string
	Text      string
	PostID    string
	AuthorID  string
	CreatedAt time.Time

	owner string
}

// Blog holds the demo types and their tables.
type Blog struct {
	Users    *Table[*User]
	Posts    *Table[*Post]
	Comments *Table[*Comment]

	users    *schema.Type
	posts    *schema.Type
	comments *schema.Type

	now func() time.Time
}

// New declares the users, posts and comments types backed by db.
func New(db *DB) *Blog {
	b := &Blog{now: func() time.Time { return time.Now().UTC() }}

	b.Users = NewTable(db, Mapping[*User]{
		Type:    "users",
		Table:   "users",
		Columns: []string{"name", "email", "password_hash", "created_at"},
		Fields:  map[string]string{"name": "name", "email": "email", "created-at": "created_at"},
		ID:      func(u *User) string { return u.ID },
		SetID:   func(u *User, id string) { u.ID = id },
		Scan: func(row scanner) (*User, error) {
			u := &User{}
			if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
				return nil, err
			}
			return u, nil
		},
		Values: func(u *User) []any {
			return []any{u.Name, u.Email, u.PasswordHash, u.CreatedAt}
		},
		BeforeSave: func(req *request.Request, u *User, created bool) error {
			if created {
				u.CreatedAt = b.now()
				return nil
			}
			return authorize(req, u.ID, "users", u.ID)
		},
		BeforeDelete: func(req *request.Request, u *User) error {
			return authorize(req, u.ID, "users", u.ID)
		},
	})

	b.Posts = NewTable(db, Mapping[*Post]{
		Type:    "posts",
		Table:   "posts",
		Columns: []string{"title", "body", "author_id", "created_at"},
		Fields:  map[string]string{"title": "title", "created-at": "created_at"},
		ID:      func(p *Post) string { return p.ID },
		SetID:   func(p *Post, id string) { p.ID = id },
		Scan: func(row scanner) (*Post, error) {
			p := &Post{}
			if err := row.Scan(&p.ID, &p.Title, &p.Body, &p.AuthorID, &p.CreatedAt); err != nil {
				return nil, err
			}
			p.owner = p.AuthorID
			return p, nil
		},
		Values: func(p *Post) []any {
			return []any{p.Title, p.Body, p.AuthorID, p.CreatedAt}
		},
		BeforeSave: func(req *request.Request, p *Post, created bool) error {
			if created {
				p.CreatedAt = b.now()
				return authorize(req, p.AuthorID, "posts", p.ID)
			}
			return authorize(req, p.owner, "posts", p.ID)
		},
		BeforeDelete: func(req *request.Request, p *Post) error {
			return authorize(req, p.owner, "posts", p.ID)
		},
	})

	b.Comments = NewTable(db, Mapping[*Comment]{
		Type:    "comments",
		Table:   "comments",
		Columns: []string{"text", "post_id", "author_id", "created_at"},
		Fields:  map[string]string{"created-at": "created_at"},
		ID:      func(c *Comment) string { return c.ID },
		SetID:   func(c *Comment, id string) { c.ID = id },
		Scan: func(row scanner) (*Comment, error) {
			c := &Comment{}
			var author sql.NullString
			if err := row.Scan(&c.ID, &c.Text, &c.PostID, &author, &c.CreatedAt); err != nil {
				return nil, err
			}
			c.AuthorID = author.String
			c.owner = c.AuthorID
			return c, nil
		},
		Values: func(c *Comment) []any {
			author := sql.NullString{String: c.AuthorID, Valid: c.AuthorID != ""}
			return []any{c.Text, c.PostID, author, c.CreatedAt}
		},
		BeforeSave: func(req *request.Request, c *Comment, created bool) error {
			if created {
				c.CreatedAt = b.now()
				if c.AuthorID == "" && req.Principal != nil {
					c.AuthorID = req.Principal.ID
				}
				return authorize(req, c.AuthorID, "comments", c.ID)
			}
			return authorize(req, c.owner, "comments", c.ID)
		},
		BeforeDelete: func(req *request.Request, c *Comment) error {
			return authorize(req, c.owner, "comments", c.ID)
		},
	})

	b.declare()
	return b
}

// WithClock replaces the clock stamping created-at.
func (b *Blog) WithClock(now func() time.Time) *Blog {
	b.now = now
	return b
}

// Types returns the declared types.
func (b *Blog) Types() []*schema.Type {
	return []*schema.Type{b.users, b.posts, b.comments}
}

// Register adds the types to registry.
func (b *Blog) Register(registry *schema.Registry) error {
	return registry.Register(b.Types()...)
}

func (b *Blog) declare() {
	b.users = schema.NewType[*User]("users",
		func(u *User) string { return u.ID },
		func(u *User, id string) { u.ID = id },
	).Attributes(
		schema.Attr("name", func(u *User) string { return u.Name }, func(u *User, v string) { u.Name = v }).
			Required().Sortable().Filterable("eq", "contains", "startswith").Validate("min=1,max=100"),
		schema.Attr("email", func(u *User) string { return u.Email }, func(u *User, v string) { u.Email = v }).
			Required().Filterable("eq").Validate("email"),
		schema.AttrFunc("password", schema.String, nil, setPassword).
			Required().WriteOnly().Validate("min=8,max=72"),
		schema.Attr("created-at", func(u *User) time.Time { return u.CreatedAt }, nil).Sortable(),
	).Relationships(
		schema.ToManyFunc("posts", []string{"posts"}, func(req *request.Request, res any) (any, error) {
			return b.related(req, b.Posts.IDs, "posts", "author_id", res.(*User).ID)
		}, nil),
	).WithHandler(b.Users)

	b.posts = schema.NewType[*Post]("posts",
		func(p *Post) string { return p.ID },
		func(p *Post, id string) { p.ID = id },
	).Attributes(
		schema.Attr("title", func(p *Post) string { return p.Title }, func(p *Post, v string) { p.Title = v }).
			Required().Sortable().Filterable("eq", "contains").Validate("min=1,max=200"),
		schema.Attr("body", func(p *Post) string { return p.Body }, func(p *Post, v string) { p.Body = v }),
		schema.Attr("created-at", func(p *Post) time.Time { return p.CreatedAt }, nil).
			Sortable().Filterable("lt", "gt"),
	).Relationships(
		schema.ToOneFunc("author", []string{"users"},
			func(_ *request.Request, res any) (any, error) {
				return identifier("users", res.(*Post).AuthorID), nil
			},
			func(_ *request.Request, res any, value any) error {
				id, err := relatedID[*User](value, func(u *User) string { return u.ID })
				res.(*Post).AuthorID = id
				return err
			},
		).Required(),
		schema.ToManyFunc("comments", []string{"comments"}, func(req *request.Request, res any) (any, error) {
			return b.related(req, b.Comments.IDs, "comments", "post_id", res.(*Post).ID)
		}, nil),
	).WithHandler(b.Posts)

	b.comments = schema.NewType[*Comment]("comments",
		func(c *Comment) string { return c.ID },
		func(c *Comment, id string) { c.ID = id },
	).Attributes(
		schema.Attr("text", func(c *Comment) string { return c.Text }, func(c *Comment, v string) { c.Text = v }).
			Required().Validate("min=1,max=2000"),
		schema.Attr("created-at", func(c *Comment) time.Time { return c.CreatedAt }, nil).Sortable(),
	).Relationships(
		schema.ToOneFunc("post", []string{"posts"},
			func(_ *request.Request, res any) (any, error) {
				return identifier("posts", res.(*Comment).PostID), nil
			},
			func(_ *request.Request, res any, value any) error {
				id, err := relatedID[*Post](value, func(p *Post) string { return p.ID })
				res.(*Comment).PostID = id
				return err
			},
		).Required(),
		schema.ToOneFunc("author", []string{"users"},
			func(_ *request.Request, res any) (any, error) {
				return identifier("users", res.(*Comment).AuthorID), nil
			},
			func(_ *request.Request, res any, value any) error {
				id, err := relatedID[*User](value, func(u *User) string { return u.ID })
				res.(*Comment).AuthorID = id
				return err
			},
		),
	).WithHandler(b.Comments)
}

func (b *Blog) related(
	req *request.Request,
	ids func(*request.Request, string, any) ([]string, error),
	typeName, column, value string,
) (any, error) {
	found, err := ids(req, column, value)
	if err != nil {
		return nil, err
	}
	out := make([]japi.Identifier, 0, len(found))
	for _, id := range found {
		out = append(out, japi.Identifier{Type: typeName, ID: id})
	}
	return out, nil
}

func setPassword(_ *request.Request, res any, value any) error {
	password, ok := value.(string)
	if !ok {
		return fmt.Errorf("password: unexpected value %T", value)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return japi.UnprocessableEntity(err.Error()).WithPointer("/data/attributes/password")
	}
	res.(*User).PasswordHash = hash
	return nil
}

func identifier(typeName, id string) any {
	if id == "" {
		return nil
	}
	return japi.Identifier{Type: typeName, ID: id}
}

func relatedID[R any](value any, id func(R) string) (string, error) {
	if value == nil {
		return "", nil
	}
	related, ok := value.(R)
	if !ok {
		return "", fmt.Errorf("unexpected related resource %T", value)
	}
	return id(related), nil
}

// authorize lets anonymous requests through; authentication is enforced by
// middleware. Authenticated principals may only touch what they own.
func authorize(req *request.Request, owner, typeName, id string) error {
	p := req.Principal
	if p == nil || p.HasRole(AdminRole) || p.ID == owner {
		return nil
	}
	return japi.Forbidden(
		fmt.Sprintf("You are not allowed to modify the resource (type='%s', id='%s').", typeName, id),
	)
}
