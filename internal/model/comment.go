package model

// Comment is one forum post row taken from a listing page.
//
// Title and UpdateTime are always set for a kept row. UpdateTime is the
// listing's "MM-DD HH:MM" string; the year is implicit and only resolved
// when needed (see ResolveDate). The other fields are best effort and stay
// empty when the row has no such cell.
type Comment struct {
	Title      string `json:"title"`
	UpdateTime string `json:"update_time"`
	ReadCount  string `json:"read_count,omitempty"`
	ReplyCount string `json:"reply_count,omitempty"`
	Author     string `json:"author,omitempty"`
	PostURL    string `json:"post_url,omitempty"`
}

// CommentColumns is the column order used by record stores.
var CommentColumns = []string{"title", "update_time", "read_count", "reply_count", "author", "post_url"}

// Row returns the comment as a record in CommentColumns order.
func (c Comment) Row() []string {
	return []string{c.Title, c.UpdateTime, c.ReadCount, c.ReplyCount, c.Author, c.PostURL}
}
