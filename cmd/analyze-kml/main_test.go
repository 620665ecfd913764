package main

import (
	"testing"

	kmlsummary "github.com/mumuon/drivefinder/kml-summary"
)

const folderKML = `<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Folder>
      <name>Ridge Road</name>
      <Placemark><name>Segment 1</name><LineString><coordinates>0,0 0,1 0,2</coordinates></LineString></Placemark>
      <Placemark><name>Segment 2</name><LineString><coordinates>0,2 abc</coordinates></LineString></Placemark>
    </Folder>
    <Folder>
      <Placemark><name> </name><Point><coordinates>1,1</coordinates></Point></Placemark>
    </Folder>
    <Placemark>
      <name>Lake</name>
      <MultiGeometry>
        <Point><coordinates>2,2</coordinates></Point>
        <Polygon><outerBoundaryIs><LinearRing><coordinates>0,0 1,0 1,1 0,0</coordinates></LinearRing></outerBoundaryIs></Polygon>
      </MultiGeometry>
    </Placemark>
  </Document>
</kml>`

func TestAnalyze(t *testing.T) {
	doc, err := kmlsummary.ParseDocument([]byte(folderKML))
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}

	a := analyze(doc)

	if a.Folders != 2 || a.Placemarks != 4 || a.Unfiled != 1 {
		t.Errorf("folders=%d placemarks=%d unfiled=%d", a.Folders, a.Placemarks, a.Unfiled)
	}
	if a.FolderSizes[2] != 1 || a.FolderSizes[1] != 1 {
		t.Errorf("folder sizes = %v", a.FolderSizes)
	}
	if a.Coordinates != 3 || a.BadLineStrings != 1 {
		t.Errorf("coordinates=%d bad=%d", a.Coordinates, a.BadLineStrings)
	}
	if a.UnnamedEntries != 1 {
		t.Errorf("unnamed = %d, expected 1", a.UnnamedEntries)
	}
	expectedGeometries := map[string]int{"Point": 2, "LineString": 2, "LinearRing": 1, "Polygon": 1, "MultiGeometry": 1}
	for tag, n := range expectedGeometries {
		if a.Geometries[tag] != n {
			t.Errorf("%s = %d, expected %d", tag, a.Geometries[tag], n)
		}
	}
	if len(a.SampleNames) != 3 || a.SampleNames[2] != "Lake" {
		t.Errorf("sample names = %v", a.SampleNames)
	}
	if a.NamespaceIssues || a.Stripped {
		t.Errorf("unexpected flags: %+v", a)
	}
}

func TestAnalyzeForeignNamespace(t *testing.T) {
	doc, err := kmlsummary.ParseDocument([]byte(`<kml xmlns="http://earth.google.com/kml/2.1"><Placemark/></kml>`))
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}

	a := analyze(doc)
	if !a.NamespaceIssues || a.Placemarks != 0 {
		t.Errorf("expected namespace issue and no placemarks, got %+v", a)
	}
}
