// Command quotecrawler crawls a paginated quotes site into quote and author
// datasets.
package main

import (
	"os"

	"github.com/JakeFAU/quotes-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
