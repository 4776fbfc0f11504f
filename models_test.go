package sqlmap

import (
	"time"

	"github.com/syssam/sqlmap/schema/field"
	"github.com/syssam/sqlmap/schema/index"
)

type User struct {
	ID        int64
	Name      string
	Email     string
	Active    bool
	CreatedAt time.Time
	Posts     []*Post
}

func (User) Table() string { return "users" }

func (User) Fields() []*field.Builder {
	return []*field.Builder{
		field.Int64("id").PrimaryKey().AutoIncrement(),
		field.String("name"),
		field.String("email").Unique(),
		field.Bool("active").Optional(),
		field.Time("created_at").Optional(),
	}
}

type Post struct {
	ID       int64
	Title    string
	Status   string
	Tags     []string
	UserID   int64
	User     *User
	Comments []*Comment
}

func (Post) Table() string { return "posts" }

func (Post) Fields() []*field.Builder {
	return []*field.Builder{
		field.Int64("id").PrimaryKey().AutoIncrement(),
		field.String("title"),
		field.Enum("status").Values("draft", "published").Optional(),
		field.JSON("tags").Optional(),
		field.Int64("user_id").ForeignKey(User{}, "id"),
	}
}

func (Post) Indexes() []*index.Builder {
	return []*index.Builder{
		index.Fields("user_id", "title"),
	}
}

type Comment struct {
	ID     int64
	Body   string
	PostID int64
}

func (Comment) Table() string { return "comments" }

func (Comment) Fields() []*field.Builder {
	return []*field.Builder{
		field.Int64("id").PrimaryKey().AutoIncrement(),
		field.Text("body"),
		field.Int64("post_id").ForeignKey(Post{}, "id"),
	}
}
