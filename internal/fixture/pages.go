// internal/fixture/pages.go
package fixture

import "html/template"

var pages = template.Must(template.New("pages").Parse(`
{{define "home"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Selenium Playground</title></head>
<body>
  <h1>Selenium Playground</h1>
  <ul id="demos">
    <li><a href="{{.FilterPath}}">Table Data Search</a></li>
  </ul>
</body>
</html>{{end}}

{{define "filter"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Table Data Search</title></head>
<body>
  <h1>Table Data Search</h1>
  <div id="filter-slot"></div>
  <table id="task-table">
    <thead><tr><th>#</th><th>Task</th><th>Assignee</th><th>Status</th></tr></thead>
    <tbody>
    {{range .Tasks}}<tr><td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Assignee}}</td><td>{{.Status}}</td></tr>
    {{end}}</tbody>
  </table>
  <script>
    window.jQuery = window.jQuery || { active: 0 };
    function applyFilter(value) {
      var needle = value.toLowerCase();
      document.querySelectorAll("#task-table tbody tr").forEach(function (row) {
        row.style.display = row.textContent.toLowerCase().indexOf(needle) >= 0 ? "" : "none";
      });
    }
    setTimeout(function () {
      var input = document.createElement("input");
      input.id = "task-table-filter";
      input.type = "text";
      input.placeholder = "Filter Tasks";
      input.addEventListener("input", function () { applyFilter(input.value); });
      input.addEventListener("keyup", function () { applyFilter(input.value); });
      document.getElementById("filter-slot").appendChild(input);
    }, {{.DelayMS}});
  </script>
</body>
</html>{{end}}
`))
