package pubmed

import "encoding/xml"

// esearchResponse is the JSON response of ESearch.
type esearchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// articleSet is the XML document returned by EFetch.
type articleSet struct {
	XMLName  xml.Name  `xml:"PubmedArticleSet"`
	Articles []article `xml:"PubmedArticle"`
}

type article struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Text []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []struct {
				LastName       string `xml:"LastName"`
				ForeName       string `xml:"ForeName"`
				Initials       string `xml:"Initials"`
				CollectiveName string `xml:"CollectiveName"`
			} `xml:"AuthorList>Author"`
			Journal struct {
				ISSN         string `xml:"ISSN"`
				Title        string `xml:"Title"`
				JournalIssue struct {
					Volume  string `xml:"Volume"`
					Issue   string `xml:"Issue"`
					PubDate struct {
						Year        string `xml:"Year"`
						Month       string `xml:"Month"`
						Day         string `xml:"Day"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Pagination struct {
				MedlinePgn string `xml:"MedlinePgn"`
			} `xml:"Pagination"`
			ELocationID []struct {
				IDType string `xml:"EIdType,attr"`
				Value  string `xml:",chardata"`
			} `xml:"ELocationID"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []struct {
			IDType string `xml:"IdType,attr"`
			Value  string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}
