package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	kmlsummary "github.com/mumuon/drivefinder/kml-summary"
)

// analysis holds the structural counts of one document.
type analysis struct {
	Stripped        bool
	Folders         int
	Placemarks      int
	Unfiled         int         // placemarks outside any folder
	FolderSizes     map[int]int // placemarks per folder -> number of folders
	Geometries      map[string]int
	Coordinates     int
	BadLineStrings  int
	UnnamedEntries  int
	SampleNames     []string
	NamespaceIssues bool // root is not a KML 2.2 <kml> element
}

var geometryTags = []string{"Point", "LineString", "LinearRing", "Polygon", "MultiGeometry"}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: analyze-kml <path-to-kmz-or-kml>")
		fmt.Println("Example: analyze-kml ~/data/df/trails/parks.kmz")
		os.Exit(1)
	}

	filePath := os.Args[1]

	content, err := kmlsummary.ReadDocumentFile(filePath)
	if err != nil {
		fmt.Printf("Error reading document: %v\n", err)
		os.Exit(1)
	}

	doc, err := kmlsummary.ParseDocument(content)
	if err != nil {
		fmt.Printf("Error parsing KML: %v\n", err)
		os.Exit(1)
	}

	a := analyze(doc)
	summary, err := kmlsummary.Process(filepath.Base(filePath), content)
	if err != nil {
		fmt.Printf("Error summarizing KML: %v\n", err)
		os.Exit(1)
	}
	printAnalysis(a, summary, filepath.Base(filePath))
}

func analyze(doc *kmlsummary.Document) analysis {
	root := doc.Root
	a := analysis{
		Stripped:        doc.Stripped,
		FolderSizes:     make(map[int]int),
		Geometries:      make(map[string]int),
		NamespaceIssues: !root.IsKML("kml"),
	}

	folders := root.Descendants("Folder")
	a.Folders = len(folders)
	filed := 0
	for _, folder := range folders {
		n := len(folder.Children("Placemark"))
		a.FolderSizes[n]++
		filed += n
	}

	placemarks := root.Descendants("Placemark")
	a.Placemarks = len(placemarks)
	a.Unfiled = a.Placemarks - filed

	for _, pm := range placemarks {
		name, ok := pm.Child("name")
		if !ok || strings.TrimSpace(name.Text()) == "" {
			a.UnnamedEntries++
		} else if len(a.SampleNames) < 10 {
			a.SampleNames = append(a.SampleNames, strings.TrimSpace(name.Text()))
		}
	}

	for _, tag := range geometryTags {
		if n := len(root.Descendants(tag)); n > 0 {
			a.Geometries[tag] = n
		}
	}

	for _, ls := range root.Descendants("LineString") {
		coords, ok := ls.Child("coordinates")
		if !ok {
			continue
		}
		line, err := kmlsummary.ParseCoordinates(coords.Text())
		if err != nil {
			a.BadLineStrings++
			continue
		}
		a.Coordinates += len(line)
	}

	return a
}

func printAnalysis(a analysis, summary *kmlsummary.Summary, filename string) {
	fmt.Println("=" + strings.Repeat("=", 70))
	fmt.Printf("KML/KMZ Analysis: %s\n", filename)
	fmt.Println("=" + strings.Repeat("=", 70))
	fmt.Println()

	fmt.Println("📄 Document:")
	if a.Stripped {
		fmt.Println("  Parsed after removing the XML declaration")
	} else {
		fmt.Println("  Parsed as delivered")
	}
	if a.NamespaceIssues {
		fmt.Println("  ⚠️  Root is not a KML 2.2 <kml> element; no features will be matched")
	}
	fmt.Println()

	fmt.Println("📊 Structure:")
	fmt.Printf("  Folders:                      %d\n", a.Folders)
	fmt.Printf("  Placemarks:                   %d\n", a.Placemarks)
	fmt.Printf("  Placemarks outside folders:   %d\n", a.Unfiled)
	fmt.Printf("  Unnamed placemarks:           %d\n", a.UnnamedEntries)
	fmt.Printf("  LineString coordinate points: %d\n", a.Coordinates)
	fmt.Printf("  Unparseable LineStrings:      %d\n", a.BadLineStrings)
	fmt.Println()

	fmt.Println("🧭 Geometry Elements:")
	for _, tag := range geometryTags {
		if n := a.Geometries[tag]; n > 0 {
			fmt.Printf("  %-14s %6d\n", tag+":", n)
		}
	}
	fmt.Println()

	if len(a.FolderSizes) > 0 {
		fmt.Println("🔢 Placemarks per Folder:")
		sizes := make([]int, 0, len(a.FolderSizes))
		for size := range a.FolderSizes {
			sizes = append(sizes, size)
		}
		slices.Sort(sizes)
		for _, size := range sizes {
			numFolders := a.FolderSizes[size]
			bar := strings.Repeat("█", min(numFolders, 50))
			fmt.Printf("  %3d placemark(s): %4d folders %s\n", size, numFolders, bar)
		}
		fmt.Println()
	}

	if len(a.SampleNames) > 0 {
		fmt.Println("🏷️  Sample Placemark Names (first 10):")
		for i, name := range a.SampleNames {
			fmt.Printf("  %2d. %s\n", i+1, name)
		}
		fmt.Println()
	}

	totals := summary.Totals()
	fmt.Println("📈 Summary:")
	fmt.Printf("  Counted features:             %d\n", totals.Features)
	fmt.Printf("  Distinct labels:              %d\n", totals.Labels)
	fmt.Printf("  Total LineString length:      %.0f m\n", totals.LengthMeters)
	fmt.Printf("  Coordinate warnings:          %d\n", len(summary.Warnings))
	fmt.Println()
	fmt.Println("=" + strings.Repeat("=", 70))
}
