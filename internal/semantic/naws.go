package semantic

// NAWS format codes carried by dedicated columns rather than the
// numbered Format slots.
const (
	nawsOpen       = "OPEN"
	nawsClosed     = "CLOSED"
	nawsWheelchair = "WCHR"
)

// NAWSDumpMap is the NAWS committee export row. The administrative
// contact columns have no aggregator counterpart and render empty; the
// remaining columns round-trip through the NAWS merge of the importer.
var NAWSDumpMap = Map{
	{Name: "Committee", Accessor: Path("meetinginfo.world_id")},
	{Name: "CommitteeName", Accessor: Path("name")},
	{Name: "AddDate", Accessor: Reserved()},
	{Name: "AreaRegion", Accessor: Path("service_body.world_id")},
	{Name: "ParentName", Accessor: Path("service_body.name")},
	{Name: "ComemID", Accessor: Reserved()},
	{Name: "ContactID", Accessor: Reserved()},
	{Name: "ContactName", Accessor: Reserved()},
	{Name: "CompanyName", Accessor: Reserved()},
	{Name: "AddrStreet", Accessor: Reserved()},
	{Name: "ResPhone", Accessor: Reserved()},
	{Name: "BusPhone", Accessor: Reserved()},
	{Name: "Fax", Accessor: Reserved()},
	{Name: "Email", Accessor: Path("meetinginfo.email_contact")},
	{Name: "AddrCity", Accessor: Reserved()},
	{Name: "AddrState", Accessor: Reserved()},
	{Name: "AddrZip", Accessor: Reserved()},
	{Name: "AddrCountry", Accessor: Reserved()},
	{Name: "LastChanged", Accessor: Reserved()},
	{Name: "Delete", Accessor: Computed(nawsDelete)},
	{Name: "Director", Accessor: Reserved()},
	{Name: "Closed", Accessor: Computed(nawsClosedFlag)},
	{Name: "WheelChr", Accessor: Computed(nawsWheelchairFlag)},
	{Name: "Day", Accessor: Computed(nawsDay)},
	{Name: "Time", Accessor: Computed(nawsTime)},
	{Name: "Language1", Accessor: Reserved()},
	{Name: "Language2", Accessor: Reserved()},
	{Name: "Language3", Accessor: Reserved()},
	{Name: "Institutionalized", Accessor: Reserved()},
	{Name: "Format1", Accessor: Computed(nawsFormat(0))},
	{Name: "Format2", Accessor: Computed(nawsFormat(1))},
	{Name: "Format3", Accessor: Computed(nawsFormat(2))},
	{Name: "Format4", Accessor: Computed(nawsFormat(3))},
	{Name: "Format5", Accessor: Computed(nawsFormat(4))},
	{Name: "Room", Accessor: Reserved()},
	{Name: "Place", Accessor: Path("meetinginfo.location_text")},
	{Name: "Address", Accessor: Path("meetinginfo.location_street")},
	{Name: "City", Accessor: Path("meetinginfo.location_city_subsection")},
	{Name: "LocBorough", Accessor: Path("meetinginfo.location_neighborhood")},
	{Name: "State", Accessor: Path("meetinginfo.location_province")},
	{Name: "Zip", Accessor: Path("meetinginfo.location_postal_code_1")},
	{Name: "Country", Accessor: Path("meetinginfo.location_nation")},
	{Name: "Directions", Accessor: Path("meetinginfo.location_info")},
	{Name: "bmlt_id", Accessor: Path("source_id")},
	{Name: "unpublished", Accessor: Computed(nawsUnpublished)},
	{Name: "Longitude", Accessor: Path("longitude")},
	{Name: "Latitude", Accessor: Path("latitude")},
}

func nawsDelete(r Record) Value {
	if v, ok := r.Get("deleted"); ok && v.Render() == "1" {
		return String("D")
	}
	return String("")
}

func nawsUnpublished(r Record) Value {
	v, ok := r.Get("published")
	return Bool(!ok || v.Render() != "1")
}

func nawsDay(r Record) Value {
	return String(weekdayName(r))
}

// nawsTime renders the start time in the NAWS four-digit clock form,
// e.g. 19:30 as 1930.
func nawsTime(r Record) Value {
	v, ok := r.Get("start_time")
	if !ok || v.IsNull() || v.Kind() != KindTime {
		return String("")
	}
	return String(twoDigits(v.time.Hour) + twoDigits(v.time.Minute))
}

func formatWorldIDs(r Record) []string {
	v, ok := r.Get("formats.world_id")
	if !ok {
		return nil
	}
	return v.List()
}

func nawsClosedFlag(r Record) Value {
	for _, id := range formatWorldIDs(r) {
		if id == nawsOpen {
			return String(nawsOpen)
		}
	}
	return String(nawsClosed)
}

func nawsWheelchairFlag(r Record) Value {
	for _, id := range formatWorldIDs(r) {
		if id == nawsWheelchair {
			return String("TRUE")
		}
	}
	return String("FALSE")
}

// nawsFormat yields the nth distinct world id after the codes served by
// the Closed and WheelChr columns.
func nawsFormat(n int) func(Record) Value {
	return func(r Record) Value {
		seen := make(map[string]struct{})
		i := 0
		for _, id := range formatWorldIDs(r) {
			if id == nawsOpen || id == nawsClosed || id == nawsWheelchair {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if i == n {
				return String(id)
			}
			i++
		}
		return String("")
	}
}
