package story

import "strings"

// Chapter is one section of a long-form story.
type Chapter struct {
	Title              string   `json:"title"`
	Content            string   `json:"content"`
	FeaturedCharacters []string `json:"featuredCharacters"`
}

// Structure is a generated long-form story.
type Structure struct {
	Title        string    `json:"title"`
	Introduction string    `json:"introduction"`
	Chapters     []Chapter `json:"chapters"`
	Conclusion   string    `json:"conclusion"`
}

// Length counts the characters of title, introduction, chapter contents and
// conclusion. Chapter titles and separators are not counted.
func (s Structure) Length() int {
	n := runeLen(s.Title) + runeLen(s.Introduction) + runeLen(s.Conclusion)
	for _, c := range s.Chapters {
		n += runeLen(c.Content)
	}
	return n
}

func (s Structure) clone() Structure {
	out := s
	out.Chapters = make([]Chapter, len(s.Chapters))
	for i, c := range s.Chapters {
		c.FeaturedCharacters = append([]string(nil), c.FeaturedCharacters...)
		out.Chapters[i] = c
	}
	return out
}

// ValidateLength reports whether s fits in f.MaxLength.
func ValidateLength(s Structure, f Format) bool {
	return s.Length() <= f.MaxLength
}

// SplitForPlatform renders s into posts in reading order: title and
// introduction, then each chapter, then the conclusion. A chapter whose
// "title\n\ncontent" exceeds f.ChapterLength is split with SplitText.
func SplitForPlatform(s Structure, f Format) []string {
	parts := make([]string, 0, len(s.Chapters)+2)
	parts = append(parts, s.Title+"\n\n"+s.Introduction)
	for _, c := range s.Chapters {
		body := c.Title + "\n\n" + c.Content
		if f.ChapterLength < 1 || runeLen(body) <= f.ChapterLength {
			parts = append(parts, body)
			continue
		}
		chunks, _ := SplitText(body, f.ChapterLength)
		parts = append(parts, chunks...)
	}
	return append(parts, s.Conclusion)
}

// AdjustLength shrinks s to fit f.MaxLength. Chapter contents share what is
// left after the fixed parts and are cut at sentence boundaries where
// possible. Only when title, introduction and conclusion alone overflow are
// they cut as well.
func AdjustLength(s Structure, f Format) Structure {
	out := s.clone()
	if ValidateLength(out, f) {
		return out
	}
	fixed := runeLen(out.Title) + runeLen(out.Introduction) + runeLen(out.Conclusion)
	budget := f.MaxLength - fixed
	if n := len(out.Chapters); n > 0 {
		share := max(budget, 0) / n
		for i := range out.Chapters {
			out.Chapters[i].Content = truncateText(out.Chapters[i].Content, share)
		}
	}
	if budget < 0 {
		remaining := f.MaxLength
		out.Title = truncateText(out.Title, remaining)
		remaining -= runeLen(out.Title)
		out.Introduction = truncateText(out.Introduction, remaining)
		remaining -= runeLen(out.Introduction)
		out.Conclusion = truncateText(out.Conclusion, remaining)
	}
	return out
}

// Text joins the story for embedding and display.
func (s Structure) Text() string {
	var b strings.Builder
	b.WriteString(s.Title)
	b.WriteString("\n\n")
	b.WriteString(s.Introduction)
	for _, c := range s.Chapters {
		b.WriteString("\n\n")
		b.WriteString(c.Title)
		b.WriteString("\n\n")
		b.WriteString(c.Content)
	}
	b.WriteString("\n\n")
	b.WriteString(s.Conclusion)
	return b.String()
}
