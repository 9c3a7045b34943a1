package enforcement

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/creatorhub/copyscan/internal/models"
)

// Notice is the data available to notice and email templates.
type Notice struct {
	Match    *models.CopyrightMatch
	Owner    string
	Contact  string
	IssuedAt time.Time
}

func (n Notice) Percent() string {
	return fmt.Sprintf("%.1f%%", n.Match.SimilarityScore*100)
}

var takedownTemplate = template.Must(template.New("takedown").Parse(`NOTICE OF COPYRIGHT INFRINGEMENT

Date: {{.IssuedAt.Format "2006-01-02"}}
Reference: {{.Match.ID}}

To the {{.Match.Platform}} copyright agent,

I am authorized to act on behalf of {{.Owner}}, the owner of the copyrighted
work identified below.

Original work:    {{.Match.OriginalRef}}
Infringing URL:   {{.Match.CandidateURL}}

An automated comparison of {{.Match.AlignedPairs}} aligned frames found a
similarity of {{.Percent}} (evidence quality: {{.Match.DataQuality}}).

I have a good faith belief that use of the material in the manner complained
of is not authorized by the copyright owner, its agent, or the law. The
information in this notice is accurate, and under penalty of perjury, I am
authorized to act on behalf of the owner.

Please remove or disable access to the material at the URL above.

Contact: {{.Contact}}
`))

var emailTemplate = template.Must(template.New("email").Parse(`Hello,

Content you published at {{.Match.CandidateURL}} closely matches
{{.Owner}}'s original work ({{.Match.OriginalRef}}), with a similarity of
{{.Percent}} across {{.Match.AlignedPairs}} compared frames.

Please remove the content or contact us at {{.Contact}} if you hold a license.

Reference: {{.Match.ID}}
`))

func render(t *template.Template, n Notice) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, n); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
